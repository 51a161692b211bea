package ui

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestDefaultThemeCoversEveryRole(t *testing.T) {
	th := DefaultTheme()
	for name, field := range th.roles() {
		if *field == tcell.ColorDefault {
			t.Errorf("role %q has no default color", name)
		}
	}
	if len(th.Roles()) != len(defaultPalette) {
		t.Errorf("palette has %d entries, theme has %d roles", len(defaultPalette), len(th.Roles()))
	}
}

func TestThemeApply(t *testing.T) {
	tests := []struct {
		name    string
		colors  map[string]string
		wantErr string
		check   func(*Theme) bool
	}{
		{
			name:   "named color",
			colors: map[string]string{"self": "Red"},
			check:  func(th *Theme) bool { return th.SelfColor == tcell.ColorRed },
		},
		{
			name:   "hex color",
			colors: map[string]string{"title": "#00ff00"},
			check:  func(th *Theme) bool { return th.TitleColor == tcell.NewHexColor(0x00ff00) },
		},
		{
			name:    "unknown role",
			colors:  map[string]string{"sidebar": "red", "self": "red"},
			wantErr: `unknown role "sidebar"`,
			check:   func(th *Theme) bool { return th.SelfColor == tcell.ColorYellowGreen },
		},
		{
			name:    "unknown color",
			colors:  map[string]string{"peer": "notacolor"},
			wantErr: `unknown color "notacolor"`,
			check:   func(th *Theme) bool { return th.PeerColor == tcell.ColorLightSkyBlue },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultTheme()
			err := th.Apply(tt.colors)
			if tt.wantErr == "" && err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Fatalf("Apply error = %v, want %q", err, tt.wantErr)
			}
			if !tt.check(th) {
				t.Error("theme not in the expected state")
			}
		})
	}
}
