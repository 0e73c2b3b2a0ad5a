package t402

import "context"

// BeforeResult is returned by a before-hook. Abort short-circuits the
// remaining before-hooks and converts the action into a failure whose
// message is Reason.
type BeforeResult struct {
	Abort  bool
	Reason string
}

// FailureResult is returned by a failure-hook. Recovered short-circuits the
// remaining failure-hooks and substitutes Result as if the action had
// succeeded.
type FailureResult[TOut any] struct {
	Recovered bool
	Result    TOut
}

type BeforeHook[TIn any] func(ctx context.Context, in TIn) BeforeResult
type AfterHook[TIn any, TOut any] func(ctx context.Context, in TIn, out TOut)
type FailureHook[TIn any, TOut any] func(ctx context.Context, in TIn, err error) FailureResult[TOut]

// HookSet is the uniform shape used by every gated action (payment
// creation, verify, settle) across all three roles: an ordered list per
// hook point. The control-return shape is identical across roles so one
// dispatch routine (Dispatch, below) serves all of them.
type HookSet[TIn any, TOut any] struct {
	before  []BeforeHook[TIn]
	after   []AfterHook[TIn, TOut]
	failure []FailureHook[TIn, TOut]
}

func NewHookSet[TIn any, TOut any]() *HookSet[TIn, TOut] {
	return &HookSet[TIn, TOut]{}
}

func (h *HookSet[TIn, TOut]) OnBefore(hook BeforeHook[TIn]) *HookSet[TIn, TOut] {
	h.before = append(h.before, hook)
	return h
}

func (h *HookSet[TIn, TOut]) OnAfter(hook AfterHook[TIn, TOut]) *HookSet[TIn, TOut] {
	h.after = append(h.after, hook)
	return h
}

func (h *HookSet[TIn, TOut]) OnFailure(hook FailureHook[TIn, TOut]) *HookSet[TIn, TOut] {
	h.failure = append(h.failure, hook)
	return h
}

// Dispatch runs before-hooks, the action, then after- or failure-hooks, in
// that order, implementing the shared control-flow contract: an aborting
// before-hook converts the action to a failure without calling it, and the
// failure-hooks see that failure like any other; a recovering failure-hook
// substitutes a successful result; after-hooks observe but cannot change an
// already-successful result.
func Dispatch[TIn any, TOut any](ctx context.Context, hooks *HookSet[TIn, TOut], in TIn, action func(context.Context, TIn) (TOut, error)) (TOut, error) {
	var out TOut
	var err error

	aborted := false
	if hooks != nil {
		for _, before := range hooks.before {
			result := before(ctx, in)
			if result.Abort {
				err = NewPaymentError(ErrHookAborted, result.Reason)
				aborted = true
				break
			}
		}
	}

	if !aborted {
		out, err = action(ctx, in)
	}

	if err != nil {
		if hooks != nil {
			for _, fail := range hooks.failure {
				recovery := fail(ctx, in, err)
				if recovery.Recovered {
					out, err = recovery.Result, nil
					break
				}
			}
		}
	}

	if err == nil && hooks != nil {
		for _, after := range hooks.after {
			after(ctx, in, out)
		}
	}

	return out, err
}
