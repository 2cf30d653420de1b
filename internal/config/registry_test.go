package config_test

import (
	"errors"
	"testing"

	"github.com/tandemscribe/tandem/internal/config"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	sttmock "github.com/tandemscribe/tandem/pkg/provider/stt/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Provider, error) {
		return sttmock.New(), nil
	})

	p, err := r.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT returned a nil provider")
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateEmbeddings(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()

	first := sttmock.New()
	second := sttmock.New()

	r := config.NewRegistry()
	r.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return first, nil })
	r.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return second, nil })

	p, err := r.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != second {
		t.Error("later registration did not overwrite the earlier one")
	}
}
