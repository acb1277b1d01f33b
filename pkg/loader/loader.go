// Package loader writes cleaned tables to their destinations.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// ErrTableExists is returned under the fail policy when the destination already exists
var ErrTableExists = errors.New("destination table already exists")

// Policy decides what happens when the destination table exists
type Policy string

const (
	PolicyFail    Policy = config.PolicyFail
	PolicyReplace Policy = config.PolicyReplace
	PolicyAppend  Policy = config.PolicyAppend
)

// ParsePolicy validates a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFail, PolicyReplace, PolicyAppend:
		return p, nil
	}
	return "", fmt.Errorf("unknown load policy %q", s)
}

// Writer persists a table under destination
type Writer interface {
	Write(ctx context.Context, table *model.Table, destination string, policy Policy) (int64, error)
}

// MultiWriter writes to a primary writer then to each secondary.
// A secondary failure is returned after the primary write has committed.
type MultiWriter struct {
	Primary     Writer
	Secondaries []Writer
}

// Write returns the row count reported by the primary writer
func (m MultiWriter) Write(ctx context.Context, table *model.Table, destination string, policy Policy) (int64, error) {
	n, err := m.Primary.Write(ctx, table, destination, policy)
	if err != nil {
		return n, err
	}

	var errs []error
	for _, w := range m.Secondaries {
		if _, err := w.Write(ctx, table, destination, policy); err != nil {
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}
