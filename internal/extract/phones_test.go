package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+1 (415) 555-0100", "+1 (415) 555 0100", true},
		{"415.555.0100", "415 555 0100", true},
		{"+44  20\t7946 - 0958", "+44 20 7946 0958", true},
		{"555-0100", "", false},
		{"+1234567890123456", "", false},
		{"12345678", "12345678", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := NormalizePhone(tt.in, opts)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindPhones_IgnoresGluedDigits(t *testing.T) {
	t.Parallel()

	text := "Order ID 98765432101234567890 and SKU AB4155550100 but call 415-555-0100"
	got := FindPhones(text, DefaultOptions())

	assert.Equal(t, []string{"415 555 0100"}, got)
}

func TestFindPhones_DigitBounds(t *testing.T) {
	t.Parallel()

	text := "Call 0800 123 456 or +49 30 1234 5678"
	got := FindPhones(text, Options{MinPhoneDigits: 11, MaxPhoneDigits: 15})

	assert.Equal(t, []string{"+49 30 1234 5678"}, got)
}

func TestFindPhones_FiveDigitGroups(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, []string{"+49 89 12345 6789"}, FindPhones("Tel: +49 89 12345 6789", opts))
	assert.Equal(t, []string{"01234 56789"}, FindPhones("Call 01234 56789 today", opts))
}

func TestDigitsOnly(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "14155550100", digitsOnly("+1 (415) 555-0100"))
	assert.Equal(t, "", digitsOnly("call us"))
}
