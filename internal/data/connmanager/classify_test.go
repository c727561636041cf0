package connmanager

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "connection terminated",
			err:  errors.New("Connection terminated unexpectedly"),
			want: true,
		},
		{
			name: "connection reset",
			err:  errors.New("read tcp 10.0.0.1:5432: connection reset by peer"),
			want: true,
		},
		{
			name: "could not connect",
			err:  errors.New("could not connect to server: no route to host"),
			want: true,
		},
		{
			name: "idle in transaction",
			err:  errors.New("terminating connection due to idle-in-transaction timeout"),
			want: true,
		},
		{
			name: "timeout expired",
			err:  errors.New("timeout expired"),
			want: true,
		},
		{
			name: "broken pipe",
			err:  errors.New("write: broken pipe"),
			want: true,
		},
		{
			name: "wrapped transient",
			err:  fmt.Errorf("enqueue job: %w", errors.New("server closed the connection unexpectedly")),
			want: true,
		},
		{
			name: "constraint violation is not transient",
			err:  errors.New(`duplicate key value violates unique constraint "scan_jobs_pkey"`),
			want: false,
		},
		{
			name: "syntax error is not transient",
			err:  errors.New(`syntax error at or near "SELEC"`),
			want: false,
		},
		{
			name: "query timeout wording is not a connection issue",
			err:  &QueryTimeoutError{},
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
