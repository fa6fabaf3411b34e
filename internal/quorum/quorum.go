package quorum

import (
	"context"
	"fmt"
)

// Result is the outcome of a Gather.
type Result[T any] struct {
	Success      bool
	Values       []T // exactly Required values on success, in arrival order
	Failures     int // failures observed before Gather returned
	Required     int
	Replicas     int
	ErrorMessage string
}

// FetchFunc asks one replica for its answer.
type FetchFunc[R, T any] func(ctx context.Context, replica R) (T, error)

type outcome[T any] struct {
	value T
	err   error
}

// Gather calls fetchFn for every replica concurrently and returns once
// required calls have succeeded. Failed calls never count toward the quorum;
// if every call has finished and fewer than required succeeded, Gather
// reports failure instead of waiting.
//
// Calls still in flight when Gather returns keep running. Their outcomes go
// to a channel owned by this Gather, so they can never be observed by a later
// one.
func Gather[R, T any](ctx context.Context, replicas []R, required int, fetchFn FetchFunc[R, T]) Result[T] {
	if len(replicas) == 0 {
		return Result[T]{
			Success:      false,
			Required:     required,
			ErrorMessage: "no replicas provided",
		}
	}

	if required <= 0 {
		return Result[T]{
			Success:      false,
			Required:     required,
			Replicas:     len(replicas),
			ErrorMessage: fmt.Sprintf("required=%d must be positive", required),
		}
	}

	if required > len(replicas) {
		return Result[T]{
			Success:      false,
			Required:     required,
			Replicas:     len(replicas),
			ErrorMessage: fmt.Sprintf("required=%d exceeds replica count=%d", required, len(replicas)),
		}
	}

	// Buffered for every replica so stragglers never block.
	outcomes := make(chan outcome[T], len(replicas))
	for _, replica := range replicas {
		go func(r R) {
			v, err := fetchFn(ctx, r)
			outcomes <- outcome[T]{value: v, err: err}
		}(replica)
	}

	var (
		values   = make([]T, 0, required)
		errs     []error
		finished int
	)
	for finished < len(replicas) && len(values) < required {
		select {
		case o := <-outcomes:
			finished++
			if o.err != nil {
				errs = append(errs, o.err)
				continue
			}
			values = append(values, o.value)
		case <-ctx.Done():
			return Result[T]{
				Success:      false,
				Failures:     len(errs),
				Required:     required,
				Replicas:     len(replicas),
				ErrorMessage: fmt.Sprintf("context cancelled: %v", ctx.Err()),
			}
		}
	}

	if len(values) >= required {
		return Result[T]{
			Success:  true,
			Values:   values,
			Failures: len(errs),
			Required: required,
			Replicas: len(replicas),
		}
	}

	errMsg := fmt.Sprintf("quorum not met: usable=%d required=%d replicas=%d", len(values), required, len(replicas))
	if len(errs) > 0 {
		errMsg += fmt.Sprintf(" errors=%v", errs[:min(3, len(errs))])
	}
	return Result[T]{
		Success:      false,
		Values:       values,
		Failures:     len(errs),
		Required:     required,
		Replicas:     len(replicas),
		ErrorMessage: errMsg,
	}
}
