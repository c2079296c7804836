package safety

import (
	"strings"
	"testing"
)

func TestValidateCommand_CleanSetblock(t *testing.T) {
	errs, warns := ValidateCommand("setblock 10 64 -5 minecraft:amethyst_block")
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
}

func TestValidateCommand_DisallowedTokens(t *testing.T) {
	cases := []struct {
		cmd  string
		want string
	}{
		{"setblock 0 0 0 minecraft:stone; op admin", "command_contains_disallowed_token:;"},
		{"fill 0 0 0 1 1 1 stone && summon pig", "command_contains_disallowed_token:&&"},
		{"summon pig || summon cow", "command_contains_disallowed_token:||"},
		{"tellraw @a `whoami`", "command_contains_disallowed_token:`"},
		{"title @a title $(cat /etc/passwd)", "command_contains_disallowed_token:$("},
		{"setblock 0 0 0 stone\nstop", "command_contains_disallowed_token:\\n"},
	}
	for _, tc := range cases {
		errs, _ := ValidateCommand(tc.cmd)
		found := false
		for _, e := range errs {
			if e == tc.want {
				found = true
			}
		}
		if !found {
			t.Fatalf("cmd %q: want error %q, got %v", tc.cmd, tc.want, errs)
		}
	}
}

func TestValidateCommand_BannedPrefixes(t *testing.T) {
	for _, cmd := range []string{"op admin", "deop admin", "stop", "reload"} {
		errs, _ := ValidateCommand(cmd)
		if len(errs) == 0 {
			t.Fatalf("cmd %q: expected banned-prefix error", cmd)
		}
	}
}

func TestValidateCommand_NonWhitelistedHeadWarns(t *testing.T) {
	errs, warns := ValidateCommand("give @p minecraft:diamond 64")
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	found := false
	for _, w := range warns {
		if w == "command_head_not_whitelisted:give" {
			found = true
		}
	}
	if !found {
		t.Fatalf("want head warning, got %v", warns)
	}
}

func TestValidateCommand_FunctionID(t *testing.T) {
	errs, _ := ValidateCommand("function drift_city:init")
	if len(errs) != 0 {
		t.Fatalf("valid function id rejected: %v", errs)
	}
	errs, _ = ValidateCommand("function Drift City:Init")
	if len(errs) == 0 {
		t.Fatalf("invalid function id accepted")
	}
}

func TestValidateCommand_ExecuteClauses(t *testing.T) {
	errs, warns := ValidateCommand("execute as @p at @p run setblock ~ ~ ~ minecraft:stone")
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	for _, w := range warns {
		if w == "execute_unknown_clause" {
			t.Fatalf("valid execute chain warned: %v", warns)
		}
	}

	_, warns = ValidateCommand("execute frobnicate @p run summon pig")
	found := false
	for _, w := range warns {
		if w == "execute_unknown_clause" {
			found = true
		}
	}
	if !found {
		t.Fatalf("want execute clause warning, got %v", warns)
	}
}

func TestValidateCommand_SuspiciousCharset(t *testing.T) {
	_, warns := ValidateCommand(`tellraw @a {"text":"hi!"}`)
	found := false
	for _, w := range warns {
		if strings.Contains(w, "suspicious_characters") {
			found = true
		}
	}
	if !found {
		t.Fatalf("want charset warning, got %v", warns)
	}
}

func TestValidateCommands_Aggregates(t *testing.T) {
	errs, warns := ValidateCommands([]string{
		"setblock 1 2 3 minecraft:stone",
		"give @p minecraft:dirt",
		"op admin",
	})
	if len(errs) != 1 {
		t.Fatalf("errors: %v", errs)
	}
	// give: head + charset (@); op admin: head.
	if len(warns) != 3 {
		t.Fatalf("warnings: %v", warns)
	}
}
