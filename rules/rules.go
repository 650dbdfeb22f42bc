// Package rules defines the contract with the external eligibility
// evaluation subsystem. The engine consumes it as a black box: a
// decision plus calculated attributes. The rule language and its
// execution are out of scope here.
package rules

import (
	"context"

	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/pool"
)

// Decision is an evaluator verdict for a proposed consumption.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	// CalculatedAttributes are derived, per-request pool attributes
	// (e.g. suggested quantities). The engine stashes them on the
	// pool's transient CalculatedAttributes map; they are never
	// persisted.
	CalculatedAttributes map[string]string `json:"calculated_attributes,omitempty"`
}

// Evaluator decides whether a consumer may draw quantity units from a
// pool. Implementations run the deployment's eligibility rules;
// PassThrough allows everything.
type Evaluator interface {
	EvaluatePool(ctx context.Context, p *pool.Pool, c *consumer.Consumer, quantity int64) (*Decision, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, p *pool.Pool, c *consumer.Consumer, quantity int64) (*Decision, error)

// EvaluatePool implements Evaluator.
func (f EvaluatorFunc) EvaluatePool(ctx context.Context, p *pool.Pool, c *consumer.Consumer, quantity int64) (*Decision, error) {
	return f(ctx, p, c, quantity)
}

// PassThrough is an Evaluator that allows every request and calculates
// nothing. Used when no rules subsystem is wired in.
var PassThrough Evaluator = EvaluatorFunc(
	func(_ context.Context, _ *pool.Pool, _ *consumer.Consumer, _ int64) (*Decision, error) {
		return &Decision{Allowed: true}, nil
	},
)
