package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/aimerfeng/Gigsy/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

// TestWithTx_Serialized tests that concurrent units never observe each other's drafts
func TestWithTx_Serialized(t *testing.T) {
	s := New()
	_, w := storetest.NewProfile(t, s, "serial@example.com")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(r store.Repos) error {
				cur, err := r.Wallets().GetForUpdate(ctx, w.ID)
				if err != nil {
					return err
				}
				cur.Balance++
				cur.TotalEarned++
				return r.Wallets().Update(ctx, cur)
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Wallets().Get(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 50 || !got.Consistent() {
		t.Fatalf("expected 50 serialized increments, got %+v", got)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	p, _ := storetest.NewProfile(t, s, "copy@example.com")
	ctx := context.Background()

	p.Skills = append(p.Skills, "unity")
	if err := s.Profiles().Update(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.Profiles().Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Skills[0] = "mutated"

	again, err := s.Profiles().Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Skills[0] != "unity" {
		t.Fatalf("caller mutation leaked into the store: %v", again.Skills)
	}
}

func TestWithTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(r store.Repos) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatal("a cancelled context must not start a unit")
	}
}
