package sampling

import (
	"math/rand"
	"testing"
)

func TestBuildCardinality(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	plan, err := Build(1000, 0.1, rng)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Len() != 100 {
		t.Errorf("Len() = %d, want 100", plan.Len())
	}
}

func TestBuildAscending(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	plan, err := Build(1000, 0.05, rng)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	blocks := plan.Blocks()
	for i := 1; i < len(blocks); i++ {
		if blocks[i] <= blocks[i-1] {
			t.Fatalf("blocks not strictly ascending at %d: %v <= %v", i, blocks[i], blocks[i-1])
		}
	}
}

func TestBuildRejectsDenseFraction(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	if _, err := Build(1000, 0.2, rng); err != ErrInvalidFraction {
		t.Errorf("Build(f=0.2) err = %v, want ErrInvalidFraction", err)
	}
	if _, err := Build(1000, 0.5, rng); err != ErrInvalidFraction {
		t.Errorf("Build(f=0.5) err = %v, want ErrInvalidFraction", err)
	}
}

func TestBuildRejectsOutOfRangeFraction(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	if _, err := Build(1000, 0, rng); err != ErrInvalidFraction {
		t.Errorf("Build(f=0) err = %v, want ErrInvalidFraction", err)
	}
	if _, err := Build(1000, 1, rng); err != ErrInvalidFraction {
		t.Errorf("Build(f=1) err = %v, want ErrInvalidFraction", err)
	}
}

func TestValidatePasses(t *testing.T) {
	if err := ValidatePasses(0); err != ErrInvalidPasses {
		t.Errorf("ValidatePasses(0) = %v, want ErrInvalidPasses", err)
	}
	if err := ValidatePasses(1); err != nil {
		t.Errorf("ValidatePasses(1) = %v, want nil", err)
	}
}
