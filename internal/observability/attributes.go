// Package observability provides metrics for the job tracking service.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrOp       = "op"
	attrOutcome  = "outcome"
	attrState    = "state"
	attrStrategy = "strategy"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String(attrOp, op)
}

func outcomeAttr(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String(attrOutcome, "ok")
	}
	return attribute.String(attrOutcome, "error")
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func strategyAttr(strategy string) attribute.KeyValue {
	return attribute.String(attrStrategy, strategy)
}

// normalizePath collapses job ids so /api/v1/jobs/abc/log becomes
// /api/v1/jobs/{jobID}/log.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] != "jobs" {
			continue
		}
		next := parts[i+1]
		if next == "" || next == "status" || next == "adopt" {
			continue
		}
		parts[i+1] = "{jobID}"
	}
	return strings.Join(parts, "/")
}
