package storage_test

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/narcache/domain/storage"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	valid := []string{
		"00bgd045z0d4icpbc2yyz4gx48ak44la.nar.xz",
		"nested/key.nar.xz",
		"a",
	}
	for _, key := range valid {
		if err := storage.ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) error = %v, want nil", key, err)
		}
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"../escape.nar.xz",
		"a/../../b",
		"a//b",
		"a/./b",
		"trailing/",
	}
	for _, key := range invalid {
		if err := storage.ValidateKey(key); !errors.Is(err, storage.ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}
