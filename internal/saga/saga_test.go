package saga

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestRunner_executesStepsInOrder(t *testing.T) {
	r := NewRunner("test", zap.NewNop(), nil)

	var order []string
	steps := []Step{
		{Name: "one", Run: func(ctx context.Context) (*Compensator, error) {
			order = append(order, "one")
			return nil, nil
		}},
		{Name: "two", Run: func(ctx context.Context) (*Compensator, error) {
			order = append(order, "two")
			return nil, nil
		}},
	}

	if err := r.Execute(context.Background(), steps); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(order) != 2 || order[0] != "one" || order[1] != "two" {
		t.Errorf("order = %v", order)
	}
}

func TestRunner_compensatesInReverseOrder(t *testing.T) {
	r := NewRunner("test", zap.NewNop(), nil)

	var undone []string
	boom := errors.New("boom")

	steps := []Step{
		{Name: "a", Run: func(ctx context.Context) (*Compensator, error) {
			return &Compensator{Name: "undo-a", Run: func(ctx context.Context) error {
				undone = append(undone, "a")
				return nil
			}}, nil
		}},
		{Name: "b", Run: func(ctx context.Context) (*Compensator, error) {
			return &Compensator{Name: "undo-b", Run: func(ctx context.Context) error {
				undone = append(undone, "b")
				return nil
			}}, nil
		}},
		{Name: "c", Run: func(ctx context.Context) (*Compensator, error) {
			return nil, boom
		}},
	}

	err := r.Execute(context.Background(), steps)
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want boom", err)
	}
	if len(undone) != 2 || undone[0] != "b" || undone[1] != "a" {
		t.Errorf("compensation order = %v, want [b a]", undone)
	}
}

func TestRunner_stepsAfterFailureNotRun(t *testing.T) {
	r := NewRunner("test", zap.NewNop(), nil)

	ran := false
	steps := []Step{
		{Name: "fails", Run: func(ctx context.Context) (*Compensator, error) {
			return nil, errors.New("nope")
		}},
		{Name: "never", Run: func(ctx context.Context) (*Compensator, error) {
			ran = true
			return nil, nil
		}},
	}

	if err := r.Execute(context.Background(), steps); err == nil {
		t.Fatal("Execute() should fail")
	}
	if ran {
		t.Error("step after the failing one should not run")
	}
}

func TestRunner_compensationFailureDoesNotStopOthers(t *testing.T) {
	r := NewRunner("test", zap.NewNop(), nil)

	var undone []string
	steps := []Step{
		{Name: "a", Run: func(ctx context.Context) (*Compensator, error) {
			return &Compensator{Name: "undo-a", Run: func(ctx context.Context) error {
				undone = append(undone, "a")
				return nil
			}}, nil
		}},
		{Name: "b", Run: func(ctx context.Context) (*Compensator, error) {
			return &Compensator{Name: "undo-b", Run: func(ctx context.Context) error {
				return errors.New("undo failed")
			}}, nil
		}},
		{Name: "c", Run: func(ctx context.Context) (*Compensator, error) {
			return nil, errors.New("boom")
		}},
	}

	r.Execute(context.Background(), steps)

	// undo-b failed but undo-a must still have run.
	if len(undone) != 1 || undone[0] != "a" {
		t.Errorf("undone = %v, want [a]", undone)
	}
}

func TestRunner_noCompensationOnSuccess(t *testing.T) {
	r := NewRunner("test", zap.NewNop(), nil)

	compensated := false
	steps := []Step{
		{Name: "a", Run: func(ctx context.Context) (*Compensator, error) {
			return &Compensator{Name: "undo-a", Run: func(ctx context.Context) error {
				compensated = true
				return nil
			}}, nil
		}},
	}

	if err := r.Execute(context.Background(), steps); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if compensated {
		t.Error("compensator should not run on success")
	}
}
