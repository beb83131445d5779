package model

import (
	"context"
	"errors"
	"fmt"
)

// RequestContext carries caller identity and correlation data that the
// default transport propagates as headers on every outgoing exchange. It is
// immutable after construction and safe for concurrent reads.
type RequestContext struct {
	Token         string
	SubjectID     string
	TenantID      string
	PartitionID   string
	CorrelationID string
	Headers       map[string]string
}

// Validate checks that the identity fields are consistent. A token without
// a subject is rejected.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.Token != "" && rc.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required when Token is set"))
	}
	if rc.PartitionID != "" && rc.TenantID == "" {
		errs = append(errs, fmt.Errorf("TenantID is required when PartitionID is set"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns
// nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
