package internal

import (
	"testing"
)

var (
	emailInputs = []string{
		"juan.delacruz@example.ph",
		"Juan.DelaCruz@Example.PH ",
		"visitor+expo@navy.mil.ph",
		"maria.santos@company.com.ph",
	}

	referenceInputs = []string{
		"0197a3c2-5f1e-7b44-9a51-2d3f6f0c8e11",
		"0197a3c2-6021-7c10-8b3e-77a0f5d2c943",
		"0197a3c2-60f4-7d2a-bc12-0e9a1b2c3d4e",
	}
)

func TestEmailKey(t *testing.T) {
	for _, tt := range []struct {
		name string
		a, b string
		same bool
	}{
		{
			name: "case and whitespace folded",
			a:    "juan.delacruz@example.ph",
			b:    "  Juan.DelaCruz@EXAMPLE.ph",
			same: true,
		},
		{
			name: "different local part",
			a:    "juan@example.ph",
			b:    "juana@example.ph",
			same: false,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmailKey(tt.a) == EmailKey(tt.b); got != tt.same {
				t.Errorf("EmailKey(%q) == EmailKey(%q): got %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

func BenchmarkSHA256_Emails(b *testing.B) {
	for i := 0; b.Loop(); i++ {
		_ = SHA256sum(emailInputs[i%len(emailInputs)])
	}
}

func BenchmarkFastHash_Emails(b *testing.B) {
	for i := 0; b.Loop(); i++ {
		_ = FastHash(emailInputs[i%len(emailInputs)])
	}
}

func BenchmarkEmailKey(b *testing.B) {
	for i := 0; b.Loop(); i++ {
		_ = EmailKey(emailInputs[i%len(emailInputs)])
	}
}

func BenchmarkFastHash_References(b *testing.B) {
	for i := 0; b.Loop(); i++ {
		_ = FastHash(referenceInputs[i%len(referenceInputs)])
	}
}
