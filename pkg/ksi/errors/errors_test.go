package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryTransient, "transient"},
		{CategoryPermanent, "permanent"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.category.String(); got != tt.expected {
				t.Errorf("Category(%d).String() = %s, want %s", tt.category, got, tt.expected)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryPermanent},
		{"delivery failure", &DeliveryError{ObserverID: "A", Err: errors.New("refused")}, CategoryTransient},
		{"checkpoint io", &CheckpointIOError{Op: "save", Err: errors.New("disk full")}, CategoryTransient},
		{"categorized passthrough", &CategorizedError{Category: CategoryTransient}, CategoryTransient},
		{"invalid rule", &InvalidRuleError{Rule: "r", Message: "bad"}, CategoryPermanent},
		{"context cancelled", context.Canceled, CategoryPermanent},
		{"context deadline", context.DeadlineExceeded, CategoryPermanent},
		{"unknown error", errors.New("unknown"), CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.expected {
				t.Errorf("Categorize() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	t.Run("message with context", func(t *testing.T) {
		err := &CategorizedError{Err: errors.New("failed"), Category: CategoryTransient, Context: "delivery"}
		expected := "delivery: failed (category: transient, attempts: 0)"
		if got := err.Error(); got != expected {
			t.Errorf("Error() = %q, want %q", got, expected)
		}
	})

	t.Run("message without context", func(t *testing.T) {
		err := &CategorizedError{Err: errors.New("failed"), Category: CategoryPermanent}
		if got := err.Error(); got != "failed (category: permanent, attempts: 0)" {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("inner error")
		err := &CategorizedError{Err: inner, Category: CategoryTransient}
		if !errors.Is(err, inner) {
			t.Error("Unwrap should return inner error")
		}
	})
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			"malformed condition with position",
			&MalformedConditionError{Expr: "a ==", Pos: 4, Message: "unexpected end"},
			`malformed condition "a ==" at position 4: unexpected end`,
		},
		{
			"invalid rule with field",
			&InvalidRuleError{Rule: "r1", Field: "source_pattern", Message: "missing colon"},
			`invalid rule "r1": source_pattern: missing colon`,
		},
		{
			"delivery timeout",
			&DeliveryError{SubscriptionID: "s1", ObserverID: "A", Timeout: true},
			"delivery to observer A timed out (subscription s1)",
		},
		{
			"routing depth",
			&RoutingDepthError{EventName: "loop:ping", Hops: 11, MaxHops: 10},
			"event loop:ping exceeded max routing depth (11 hops, limit 10)",
		},
		{
			"checkpoint io",
			&CheckpointIOError{CheckpointID: "c1", Op: "load", Err: errors.New("gone")},
			"checkpoint c1: load: gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDeliveryErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &DeliveryError{ObserverID: "A", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should return inner error")
	}
}

// fastRetry keeps backoff negligible so tests run quickly.
func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  1,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		calls := 0
		result := WithRetry(fastRetry(3), func() (string, error) {
			calls++
			return "success", nil
		})

		if result.Err != nil {
			t.Errorf("unexpected error: %v", result.Err)
		}
		if result.Value != "success" {
			t.Errorf("Value = %q, want %q", result.Value, "success")
		}
		if result.Attempts != 1 || calls != 1 {
			t.Errorf("Attempts = %d, calls = %d, want 1 and 1", result.Attempts, calls)
		}
	})

	t.Run("success after transient failures", func(t *testing.T) {
		calls := 0
		result := WithRetry(fastRetry(3), func() (string, error) {
			calls++
			if calls < 3 {
				return "", &DeliveryError{ObserverID: "A", Err: errors.New("refused")}
			}
			return "success", nil
		})

		if result.Err != nil {
			t.Errorf("unexpected error: %v", result.Err)
		}
		if result.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", result.Attempts)
		}
	})

	t.Run("permanent failure stops immediately", func(t *testing.T) {
		calls := 0
		result := WithRetry(fastRetry(3), func() (string, error) {
			calls++
			return "", errors.New("bad configuration")
		})

		if result.Err == nil {
			t.Fatal("expected an error")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1 (permanent errors must not retry)", calls)
		}
		var categorized *CategorizedError
		if !errors.As(result.Err, &categorized) {
			t.Fatalf("Err = %T, want *CategorizedError", result.Err)
		}
		if categorized.Category != CategoryPermanent {
			t.Errorf("Category = %s, want permanent", categorized.Category)
		}
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		calls := 0
		result := WithRetry(fastRetry(2), func() (string, error) {
			calls++
			return "", &DeliveryError{ObserverID: "A", Err: errors.New("refused")}
		})

		if result.Err == nil {
			t.Fatal("expected an error")
		}
		if calls != 2 || result.Attempts != 2 {
			t.Errorf("calls = %d, Attempts = %d, want 2 and 2", calls, result.Attempts)
		}
	})

	t.Run("custom retryable func", func(t *testing.T) {
		calls := 0
		cfg := fastRetry(3)
		cfg.RetryableFunc = func(error) bool { return true }
		result := WithRetry(cfg, func() (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("anything goes")
			}
			return "done", nil
		})

		if result.Err != nil {
			t.Errorf("unexpected error: %v", result.Err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})
}

func TestWithRetryContext(t *testing.T) {
	t.Run("cancelled before first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		result := WithRetryContext(ctx, fastRetry(3), func(context.Context) (string, error) {
			calls++
			return "", nil
		})

		if result.Err == nil {
			t.Fatal("expected an error")
		}
		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		cfg := fastRetry(3)
		cfg.InitialBackoff = time.Second
		result := WithRetryContext(ctx, cfg, func(context.Context) (string, error) {
			cancel()
			return "", &DeliveryError{ObserverID: "A", Err: errors.New("refused")}
		})

		if result.Err == nil {
			t.Fatal("expected an error")
		}
		if result.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", result.Attempts)
		}
	})
}
