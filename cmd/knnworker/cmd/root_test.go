package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ssargent/freyja-knn/pkg/di"
	"github.com/ssargent/freyja-knn/pkg/distance"
)

func TestValidateFlagsRejectsMissingInput(t *testing.T) {
	container = di.NewContainer()
	flagInput = ""
	flagMaxK = 1
	flagDistFuncName = "euclidean"

	if err := validateFlags(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected error for missing -app.in")
	}
}

func TestValidateFlagsRejectsMaxKBelowOne(t *testing.T) {
	container = di.NewContainer()
	flagInput = "package.yaml"
	flagMaxK = 0
	flagDistFuncName = "euclidean"

	if err := validateFlags(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected error for maxk < 1")
	}
}

func TestValidateFlagsRejectsUnknownDistanceFunction(t *testing.T) {
	container = di.NewContainer()
	container.SetDistanceRegistry(func(name string) (distance.Func, error) {
		return nil, errors.New("unknown")
	})
	flagInput = "package.yaml"
	flagMaxK = 1
	flagDistFuncName = "not-a-real-function"

	if err := validateFlags(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected error for unknown distance function")
	}
}

func TestValidateFlagsAcceptsValidConfiguration(t *testing.T) {
	container = di.NewContainer()
	flagInput = "package.yaml"
	flagMaxK = 5
	flagDistFuncName = "euclidean"

	if err := validateFlags(&cobra.Command{}, nil); err != nil {
		t.Fatalf("expected valid configuration to pass, got %v", err)
	}
	if resolvedDistFunc == nil {
		t.Fatal("expected resolvedDistFunc to be set")
	}
}
