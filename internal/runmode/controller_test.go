package runmode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"automation-service/internal/models"
)

type fakeLookup struct {
	known map[string]bool
}

func (f *fakeLookup) Get(systemID, taskID string) (models.TaskDefinition, error) {
	if f.known[taskID] {
		return models.TaskDefinition{TaskID: taskID, SystemID: systemID}, nil
	}
	return models.TaskDefinition{}, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
}

func TestSetRequiresKnownTask(t *testing.T) {
	c := New(&fakeLookup{known: map[string]bool{"t1": true}}, nil)
	ctx := context.Background()

	if err := c.Set(ctx, "sys1", "t1", models.RunManual); err != nil {
		t.Fatalf("set known task: %v", err)
	}
	if err := c.Set(ctx, "sys1", "ghost", models.RunManual); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("set unknown task: got %v, want not found", err)
	}
	if err := c.Set(ctx, "sys1", "t1", "SOMETIMES"); err == nil {
		t.Error("expected validation error for unknown mode")
	}
}

func TestGetDefaultsToAuto(t *testing.T) {
	c := New(nil, nil)
	if mode := c.Get("sys1", "never-set"); mode != models.RunAuto {
		t.Errorf("default mode = %s, want AUTO", mode)
	}
	if err := c.Set(context.Background(), "sys1", "t1", models.RunManual); err != nil {
		t.Fatal(err)
	}
	if mode := c.Get("sys1", "t1"); mode != models.RunManual {
		t.Errorf("mode = %s, want MANUAL", mode)
	}
}

func TestForgetDropsState(t *testing.T) {
	c := New(nil, nil)
	ctx := context.Background()
	if err := c.Set(ctx, "sys1", "t1", models.RunManual); err != nil {
		t.Fatal(err)
	}
	if err := c.Forget(ctx, "sys1", "t1"); err != nil {
		t.Fatal(err)
	}
	if mode := c.Get("sys1", "t1"); mode != models.RunAuto {
		t.Errorf("mode after forget = %s, want AUTO default", mode)
	}
}

func TestListBySystemPagination(t *testing.T) {
	c := New(nil, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		if err := c.Set(ctx, "sys1", id, models.RunManual); err != nil {
			t.Fatal(err)
		}
	}
	_ = c.Set(ctx, "other", "tx", models.RunManual)

	if got := c.ListBySystem("sys1", 0, 2); len(got) != 2 {
		t.Errorf("page(0,2): got %d", len(got))
	}
	// number == 0 returns all remaining from first.
	got := c.ListBySystem("sys1", 1, 0)
	if len(got) != 4 {
		t.Fatalf("page(1,0): got %d, want 4", len(got))
	}
	if got[0].TaskID != "t1" {
		t.Errorf("first entry = %s, want t1", got[0].TaskID)
	}
}
