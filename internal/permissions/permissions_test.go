package permissions

import "testing"

func TestCheck(t *testing.T) {
	p := Permissions{
		Read:   []Role{Any()},
		Update: []Role{ForUser("alice"), ForGroup("editors")},
		Delete: []Role{ForUser("alice")},
	}

	cases := []struct {
		name   string
		user   User
		action Action
		want   bool
	}{
		{"anyone can read", User{Id: "bob"}, ActionRead, true},
		{"owner can update", User{Id: "alice"}, ActionUpdate, true},
		{"group member can update", User{Id: "carol", Groups: []string{"editors"}}, ActionUpdate, true},
		{"stranger cannot update", User{Id: "dave"}, ActionUpdate, false},
		{"only owner can delete", User{Id: "bob"}, ActionDelete, false},
		{"no create role denies everyone", User{Id: "alice"}, ActionCreate, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := p.Check(c.user, c.action); got != c.want {
				t.Errorf("Check(%+v, %s) = %v, want %v", c.user, c.action, got, c.want)
			}
		})
	}
}

func TestParseOrEmptyFallsBackOnMalformedInput(t *testing.T) {
	p := ParseOrEmpty([]byte(`not json`))
	if p.Check(User{Id: "anyone"}, ActionRead) {
		t.Fatal("malformed permissions must deny all actions")
	}

	p = ParseOrEmpty(nil)
	if p.Check(User{Id: "anyone"}, ActionRead) {
		t.Fatal("empty permissions must deny all actions")
	}
}

func TestStringRoundTrips(t *testing.T) {
	p := Permissions{Read: []Role{Any()}}
	s := p.String()
	p2 := ParseOrEmpty([]byte(s))
	if !p2.Check(User{Id: "x"}, ActionRead) {
		t.Fatalf("round-tripped permissions lost read access: %s", s)
	}
}
