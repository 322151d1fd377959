package storage

import "testing"

func TestInMemoryReadWrite(t *testing.T) {
	s := NewInMemory()

	v, err := s.Read("accounts")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != nil {
		t.Errorf("Read on empty table = %v, want nil", v)
	}

	if err := s.Write("accounts", 42); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err = s.Read("accounts")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 42 {
		t.Errorf("Read after Write = %v, want 42", v)
	}
}
