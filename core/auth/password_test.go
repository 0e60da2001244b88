package auth

import "testing"

func TestPasswordHashRoundTrip(t *testing.T) {
	hashed, err := HashPassword("Passw0rd!", "pepper")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("Passw0rd!", "pepper", hashed)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(correct): ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", "pepper", hashed)
	if err != nil || ok {
		t.Fatalf("VerifyPassword(wrong password): ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("Passw0rd!", "other-pepper", hashed)
	if err != nil || ok {
		t.Fatalf("VerifyPassword(wrong pepper): ok=%v err=%v", ok, err)
	}
}

func TestPasswordHashUniqueSalt(t *testing.T) {
	a, err := HashPassword("Passw0rd!", "pepper")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("Passw0rd!", "pepper")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a.Salt == b.Salt || a.Hash == b.Hash {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestParsePasswordHash(t *testing.T) {
	if _, err := ParsePasswordHash("", "salt"); err == nil {
		t.Fatal("expected error for empty hash")
	}
	if _, err := ParsePasswordHash("hash", ""); err == nil {
		t.Fatal("expected error for empty salt")
	}
}
