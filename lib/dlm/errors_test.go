package dlm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewError(t *testing.T) {
	t.Run("ENOMEM", func(t *testing.T) {
		err := NewError(-12)
		if err.Errno != unix.ENOMEM {
			t.Errorf("expected errno %d, got %d", unix.ENOMEM, err.Errno)
		}
		if !strings.EqualFold(err.Msg, "Cannot allocate memory") {
			t.Errorf("expected the ENOMEM description, got %q", err.Msg)
		}
		if !strings.Contains(err.Error(), "(errno 12)") {
			t.Errorf("expected the errno in %q", err.Error())
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		var err error = NewError(-int(unix.EAGAIN))
		if !errors.Is(err, unix.EAGAIN) {
			t.Error("expected errors.Is(err, EAGAIN)")
		}
		if !IsNotAvailable(err) {
			t.Error("expected IsNotAvailable")
		}
		if IsNotAvailable(NewError(-int(unix.EBUSY))) {
			t.Error("EBUSY is not a not-available error")
		}
	})

	t.Run("Errno", func(t *testing.T) {
		wrapped := fmt.Errorf("acquire: %w", NewError(-int(unix.EDEADLK)))
		if got := Errno(wrapped); got != unix.EDEADLK {
			t.Errorf("expected EDEADLK, got %d", got)
		}
		if got := Errno(errors.New("plain")); got != 0 {
			t.Errorf("expected 0 for a foreign error, got %d", got)
		}
	})

	t.Run("PanicsOnNonNegative", func(t *testing.T) {
		for _, rc := range []int{0, 1, 12} {
			func() {
				defer func() {
					if recover() == nil {
						t.Errorf("expected panic for rc=%d", rc)
					}
				}()
				NewError(rc)
			}()
		}
	})
}

func TestStatusBlock(t *testing.T) {
	t.Run("DecodeCopiesValue", func(t *testing.T) {
		lvb := []byte{1, 2, 3}
		sb := DecodeStatusBlock(0, 7, uint8(SBFAltMode), lvb)
		lvb[0] = 9
		if sb.Value[0] != 1 {
			t.Fatal("status block aliases the raw value block")
		}
		if sb.LockID != 7 || sb.Flags != SBFAltMode {
			t.Errorf("unexpected status block: %s", sb)
		}
	})

	t.Run("NoValue", func(t *testing.T) {
		sb := DecodeStatusBlock(0, 1, 0, nil)
		if sb.Value != nil || sb.ValueValid() {
			t.Error("expected no value")
		}
		if want := "status: 0, lkid: 1, flags: 0, lvb: None"; sb.String() != want {
			t.Errorf("expected %q, got %q", want, sb.String())
		}
	})

	t.Run("ValueValid", func(t *testing.T) {
		if !DecodeStatusBlock(0, 1, 0, make([]byte, LVBLen)).ValueValid() {
			t.Error("expected a valid value")
		}
		if DecodeStatusBlock(0, 1, uint8(SBFValNotValid), make([]byte, LVBLen)).ValueValid() {
			t.Error("VALNOTVALID must invalidate the value")
		}
	})

	t.Run("Err", func(t *testing.T) {
		for _, status := range []int32{0, -EUNLOCK, -ECANCEL} {
			if err := DecodeStatusBlock(status, 1, 0, nil).Err(); err != nil {
				t.Errorf("status %d: expected nil, got %v", status, err)
			}
		}
		err := DecodeStatusBlock(-int32(unix.EAGAIN), 1, 0, nil).Err()
		if !IsNotAvailable(err) {
			t.Errorf("expected EAGAIN, got %v", err)
		}
	})
}

func TestLockModes(t *testing.T) {
	for _, s := range []string{"NL", "cr", "CW", "pr", " PW ", "EX"} {
		mode, err := ParseLockMode(s)
		if err != nil {
			t.Errorf("ParseLockMode(%q) failed: %v", s, err)
			continue
		}
		if !mode.Valid() {
			t.Errorf("ParseLockMode(%q) returned invalid mode %s", s, mode)
		}
	}
	for _, s := range []string{"IV", "", "XX"} {
		if _, err := ParseLockMode(s); err == nil {
			t.Errorf("ParseLockMode(%q) should fail", s)
		}
	}

	if ModeEX.String() != "EX" || LockMode(9).String() != "LockMode(9)" {
		t.Errorf("unexpected mode names: %s %s", ModeEX, LockMode(9))
	}

	if !Compatible(ModePR, ModePR) || Compatible(ModePR, ModePW) || Compatible(ModeEX, ModeCR) || !Compatible(ModeEX, ModeNL) {
		t.Error("compatibility matrix is wrong")
	}
	if Compatible(ModeIV, ModeNL) {
		t.Error("IV must not be compatible with anything")
	}
	for a := ModeNL; a <= ModeEX; a++ {
		for b := ModeNL; b <= ModeEX; b++ {
			if Compatible(a, b) != Compatible(b, a) {
				t.Errorf("matrix not symmetric for %s/%s", a, b)
			}
		}
	}
}

func TestLockFlags(t *testing.T) {
	flags, err := ParseLockFlags("noqueue, VALBLK|0x40")
	if err != nil {
		t.Fatalf("ParseLockFlags failed: %v", err)
	}
	if flags != FlagNoQueue|FlagValBlk|FlagConvDeadlk {
		t.Errorf("unexpected flags: %s", flags)
	}
	if flags.String() != "NOQUEUE|VALBLK|CONVDEADLK" {
		t.Errorf("unexpected flag string: %s", flags)
	}
	if !flags.Has(FlagNoQueue | FlagValBlk) {
		t.Error("expected Has for a subset")
	}
	if flags.Has(FlagNoQueue | FlagCancel) {
		t.Error("Has must require all bits")
	}

	if _, err := ParseLockFlags("NOPE"); err == nil {
		t.Error("expected error for unknown flag")
	}
	if flags, err := ParseLockFlags(""); err != nil || flags != 0 {
		t.Errorf("expected 0 for empty input, got %s, %v", flags, err)
	}
	if s := LockFlag(0x80000).String(); s != "0x80000" {
		t.Errorf("expected unknown bits as hex, got %s", s)
	}
	if s := (SBFDemoted | SBFAltMode).String(); s != "DEMOTED|ALTMODE" {
		t.Errorf("unexpected status flag string: %s", s)
	}
}
