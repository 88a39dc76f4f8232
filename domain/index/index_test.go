package index_test

import (
	"reflect"
	"testing"

	"github.com/felixgeelhaar/narcache/domain/index"
	"github.com/felixgeelhaar/narcache/domain/narinfo"
)

const sampleText = `StorePath: /nix/store/00bgd045z0d4icpbc2yyz4gx48ak44la-net-tools-1.60_p20170221182432
NarHash: sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s
NarSize: 464152
FileHash: sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s
FileSize: 114980
URL: nar/00bgd045z0d4icpbc2yyz4gx48ak44la.nar.xz
Compression: xz
References: 00bgd045z0d4icpbc2yyz4gx48ak44la-net-tools-1.60_p20170221182432 7gx4kiv5m0i7d7qkixq2cwzbr10lvxwc-glibc-2.27
Sig: cache.nixos.org-1:TsTTb3WGTZKphvYdBHXwo6weVILmTytUjLB+vcX89fOjjRicCHmKA4RCPMVLkj6TMJ4GMX3HPVWRdD1hkeKZBQ==
`

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	info, _, err := narinfo.Parse(sampleText)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	record := index.FromNarInfo("00bgd045z0d4icpbc2yyz4gx48ak44la", info)

	if record.ID != "00bgd045z0d4icpbc2yyz4gx48ak44la" {
		t.Errorf("ID = %q", record.ID)
	}
	if record.RegistrationTime.IsZero() {
		t.Error("RegistrationTime not stamped")
	}
	if record.NarSize != 464152 {
		t.Errorf("NarSize = %d, want 464152", record.NarSize)
	}
	if record.FileSize == nil || *record.FileSize != 114980 {
		t.Errorf("FileSize = %v, want 114980", record.FileSize)
	}
	if record.URL != "nar/00bgd045z0d4icpbc2yyz4gx48ak44la.nar.xz" {
		t.Errorf("URL = %q", record.URL)
	}

	restored, err := record.NarInfo()
	if err != nil {
		t.Fatalf("NarInfo() error = %v", err)
	}
	if !reflect.DeepEqual(restored, info) {
		t.Errorf("round-trip mismatch:\ngot  %#v\nwant %#v", restored, info)
	}
}

func TestRecordNarInfoMinimal(t *testing.T) {
	t.Parallel()

	minimal := "StorePath: /nix/store/x\nNarHash: sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s\nNarSize: 7\n"
	info, _, err := narinfo.Parse(minimal)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	record := index.FromNarInfo("x", info)
	if record.FileSize != nil || record.FileHash != "" || record.Compression != "" {
		t.Errorf("optional fields should stay absent: %+v", record)
	}

	restored, err := record.NarInfo()
	if err != nil {
		t.Fatalf("NarInfo() error = %v", err)
	}
	if restored.String() != minimal {
		t.Errorf("String() = %q, want %q", restored.String(), minimal)
	}
}

func TestRecordNarInfoBadHash(t *testing.T) {
	t.Parallel()

	record := index.Record{NarHash: "sha999:zzz"}
	if _, err := record.NarInfo(); err == nil {
		t.Error("NarInfo() with bad hash should fail")
	}
}
