package mlog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// maxChainDepth bounds chain walking in case an Unwrap implementation cycles.
const maxChainDepth = 32

// Link is one error in a wrap chain.
type Link struct {
	Kind    string
	Message string
	Stack   []string
}

type kinder interface {
	ErrorKind() string
}

type stackTracer interface {
	StackTrace() []string
}

// Chain flattens err and its causes, outermost first. Multi-errors
// (Unwrap() []error) are followed through their first element.
func Chain(err error) []Link {
	var links []Link
	seen := make(map[any]struct{})

	for err != nil && len(links) < maxChainDepth {
		// Only pointers are safe map keys: a comparable struct can still hold
		// an unhashable value in an interface field. Value errors that cycle
		// are stopped by maxChainDepth.
		if reflect.TypeOf(err).Kind() == reflect.Pointer {
			if _, dup := seen[err]; dup {
				break
			}
			seen[err] = struct{}{}
		}

		next := cause(err)
		link := Link{
			Kind:    kindOf(err),
			Message: ownMessage(err, next),
		}
		if st, ok := err.(stackTracer); ok {
			link.Stack = st.StackTrace()
		}
		links = append(links, link)
		err = next
	}
	return links
}

func cause(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

func kindOf(err error) string {
	if k, ok := err.(kinder); ok {
		if kind := k.ErrorKind(); kind != "" {
			return kind
		}
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// ownMessage strips the cause's text that fmt.Errorf("...: %w") style
// wrapping appends, leaving only what this link adds.
func ownMessage(err, next error) string {
	msg := err.Error()
	if next == nil {
		return msg
	}
	inner := next.Error()
	if trimmed, ok := strings.CutSuffix(msg, ": "+inner); ok && trimmed != "" {
		return trimmed
	}
	return msg
}
