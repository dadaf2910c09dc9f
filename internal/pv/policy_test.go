package pv_test

import (
	"strings"
	"testing"

	"pv-go/internal/model"
	"pv-go/internal/pv"
)

func TestPrivacyPolicyDecide(t *testing.T) {
	policy := pv.NewPrivacyPolicy()

	t.Run("owner default applies without signals or rules", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/home/ada/notes.txt",
			Owner:        "ada",
			OwnerDefault: pv.LevelPersonal,
		})
		if d.AppliedLevel != pv.LevelPersonal {
			t.Errorf("Decide() applied = %s, want personal", d.AppliedLevel)
		}
	})

	t.Run("override wins over everything", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:  "/home/ada/.ssh/id_rsa",
			Owner: "ada",
			Override: &model.FileOverride{
				FilePath: "/home/ada/.ssh/id_rsa",
				Level:    int(pv.LevelPublic),
				Reason:   "test fixture key",
			},
			Signal:       pv.SignalKeys,
			HasSignal:    true,
			Categories:   map[pv.Category]int{pv.CategoryPrivateKey: 1},
			OwnerDefault: pv.LevelPersonal,
		})
		if d.AppliedLevel != pv.LevelPublic {
			t.Errorf("Decide() applied = %s, want public", d.AppliedLevel)
		}
		if !strings.Contains(d.Reason, "test fixture key") {
			t.Errorf("Decide() reason = %q, want the override reason", d.Reason)
		}
	})

	t.Run("file signal sets the base", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/backup/tanasi/firefox/logins.json",
			Owner:        "tanasi",
			Signal:       pv.SignalPasswordsStore,
			HasSignal:    true,
			OwnerDefault: pv.LevelPersonal,
		})
		if d.AppliedLevel != pv.LevelPrivate {
			t.Errorf("Decide() applied = %s, want private", d.AppliedLevel)
		}
	})

	t.Run("keys signal is restricted", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/home/ada/.ssh/id_rsa",
			Owner:        "ada",
			Signal:       pv.SignalKeys,
			HasSignal:    true,
			OwnerDefault: pv.LevelPersonal,
		})
		if d.AppliedLevel != pv.LevelRestricted {
			t.Errorf("Decide() applied = %s, want restricted", d.AppliedLevel)
		}
	})

	t.Run("rule raises the base", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/data/finance/q3.txt",
			Owner:        "ada",
			OwnerDefault: pv.LevelPersonal,
			Rules: []model.PrivacyRule{
				{Name: "finance", Pattern: "**/finance/**", TargetLevel: int(pv.LevelRestricted), Enabled: true},
			},
		})
		if d.AppliedLevel != pv.LevelRestricted {
			t.Errorf("Decide() applied = %s, want restricted", d.AppliedLevel)
		}
		if !strings.Contains(d.Reason, "finance") {
			t.Errorf("Decide() reason = %q, want the rule name", d.Reason)
		}
	})

	t.Run("rule never lowers the base", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/home/ada/.ssh/id_rsa",
			Owner:        "ada",
			Signal:       pv.SignalKeys,
			HasSignal:    true,
			OwnerDefault: pv.LevelPersonal,
			Rules: []model.PrivacyRule{
				{Name: "relax", Pattern: "id_rsa", TargetLevel: int(pv.LevelPersonal), Enabled: true},
			},
		})
		if d.AppliedLevel != pv.LevelRestricted {
			t.Errorf("Decide() applied = %s, want restricted", d.AppliedLevel)
		}
	})

	t.Run("disabled rules are ignored", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/data/finance/q3.txt",
			Owner:        "ada",
			OwnerDefault: pv.LevelPersonal,
			Rules: []model.PrivacyRule{
				{Name: "finance", Pattern: "**/finance/**", TargetLevel: int(pv.LevelRestricted), Enabled: false},
			},
		})
		if d.AppliedLevel != pv.LevelPersonal {
			t.Errorf("Decide() applied = %s, want personal", d.AppliedLevel)
		}
	})

	t.Run("strictest matching rule wins", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/data/finance/q3.txt",
			Owner:        "ada",
			OwnerDefault: pv.LevelPersonal,
			Rules: []model.PrivacyRule{
				{Name: "data", Pattern: "/data/**", TargetLevel: int(pv.LevelPrivate), Enabled: true},
				{Name: "finance", Pattern: "**/finance/**", TargetLevel: int(pv.LevelRestricted), Enabled: true},
			},
		})
		if d.AppliedLevel != pv.LevelRestricted {
			t.Errorf("Decide() applied = %s, want restricted", d.AppliedLevel)
		}
	})

	t.Run("rule matches by base name glob", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/deep/nested/dir/secrets.yaml",
			Owner:        "ada",
			OwnerDefault: pv.LevelPersonal,
			Rules: []model.PrivacyRule{
				{Name: "secrets", Pattern: "secrets.*", TargetLevel: int(pv.LevelRestricted), Enabled: true},
			},
		})
		if d.AppliedLevel != pv.LevelRestricted {
			t.Errorf("Decide() applied = %s, want restricted", d.AppliedLevel)
		}
	})

	t.Run("rule matches by substring fallback", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/var/Payroll/2024.csv",
			Owner:        "ada",
			OwnerDefault: pv.LevelPersonal,
			Rules: []model.PrivacyRule{
				{Name: "payroll", Pattern: "payroll", TargetLevel: int(pv.LevelPrivate), Enabled: true},
			},
		})
		if d.AppliedLevel != pv.LevelPrivate {
			t.Errorf("Decide() applied = %s, want private", d.AppliedLevel)
		}
	})

	t.Run("detected content escalates to private", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/home/ada/notes.txt",
			Owner:        "ada",
			Categories:   map[pv.Category]int{pv.CategorySSN: 1},
			OwnerDefault: pv.LevelPersonal,
		})
		if d.OriginalLevel != pv.LevelPersonal {
			t.Errorf("Decide() original = %s, want personal", d.OriginalLevel)
		}
		if d.AppliedLevel != pv.LevelPrivate {
			t.Errorf("Decide() applied = %s, want private", d.AppliedLevel)
		}
	})

	t.Run("detected content never lowers a stricter base", func(t *testing.T) {
		d := policy.Decide(pv.DecisionInput{
			Path:         "/home/ada/.ssh/id_rsa",
			Owner:        "ada",
			Signal:       pv.SignalKeys,
			HasSignal:    true,
			Categories:   map[pv.Category]int{pv.CategoryEmail: 1},
			OwnerDefault: pv.LevelPersonal,
		})
		if d.AppliedLevel != pv.LevelRestricted {
			t.Errorf("Decide() applied = %s, want restricted", d.AppliedLevel)
		}
	})

	t.Run("applied is never below original", func(t *testing.T) {
		inputs := []pv.DecisionInput{
			{Path: "/a", OwnerDefault: pv.LevelPublic},
			{Path: "/b", OwnerDefault: pv.LevelPersonal, Categories: map[pv.Category]int{pv.CategoryEmail: 2}},
			{Path: "/c", Signal: pv.SignalConfig, HasSignal: true, OwnerDefault: pv.LevelPublic},
		}
		for _, in := range inputs {
			d := policy.Decide(in)
			if d.AppliedLevel < d.OriginalLevel {
				t.Errorf("Decide(%q) applied %s below original %s", in.Path, d.AppliedLevel, d.OriginalLevel)
			}
		}
	})
}

func TestDefaultOwnerLevel(t *testing.T) {
	if got := pv.DefaultOwnerLevel(pv.OwnerShared); got != pv.LevelPublic {
		t.Errorf("DefaultOwnerLevel(shared) = %s, want public", got)
	}
	if got := pv.DefaultOwnerLevel("tanasi"); got != pv.LevelPersonal {
		t.Errorf("DefaultOwnerLevel(tanasi) = %s, want personal", got)
	}
	if got := pv.DefaultOwnerLevel(pv.OwnerUnknown); got != pv.LevelPersonal {
		t.Errorf("DefaultOwnerLevel(unknown) = %s, want personal", got)
	}
}
