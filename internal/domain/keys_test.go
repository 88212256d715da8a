package domain

import "testing"

func TestMuteKey_StringAndParse(t *testing.T) {
	k := MuteKey{UserID: 175928847299117063, GuildID: 41771983423143937}
	s := k.String()
	if s != "175928847299117063,41771983423143937" {
		t.Fatalf("String() = %q", s)
	}
	got, err := ParseMuteKey(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != k {
		t.Fatalf("parse = %+v; want %+v", got, k)
	}
}

func TestParseMuteKey_Errors(t *testing.T) {
	for _, in := range []string{"", "123", "abc,1", "1,xyz"} {
		if _, err := ParseMuteKey(in); err == nil {
			t.Fatalf("ParseMuteKey(%q): expected error", in)
		}
	}
}

func TestCooldownKey_ResourceMayContainComma(t *testing.T) {
	k := CooldownKey{UserID: 42, Resource: "rule,3"}
	got, err := ParseCooldownKey(k.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != k {
		t.Fatalf("parse = %+v; want %+v", got, k)
	}
	if _, err := ParseCooldownKey("42,"); err == nil {
		t.Fatalf("expected error for empty resource")
	}
	if _, err := ParseCooldownKey("nope,rule"); err == nil {
		t.Fatalf("expected error for bad user id")
	}
}

func TestCodecsMatchStringForms(t *testing.T) {
	mk := MuteKey{UserID: 1, GuildID: 2}
	if MuteKeys.Encode(mk) != "1,2" {
		t.Fatalf("MuteKeys.Encode = %q", MuteKeys.Encode(mk))
	}
	ck, err := CooldownKeys.Decode("7,thanks")
	if err != nil || ck.UserID != 7 || ck.Resource != "thanks" {
		t.Fatalf("CooldownKeys.Decode = %+v, %v", ck, err)
	}
}
