package chart

import "fmt"

// Theme is the terminal's color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme accepts "dark" or "light".
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeDark, ThemeLight:
		return Theme(s), nil
	}
	return "", fmt.Errorf("chart: unknown theme %q", s)
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Palette returns the cosmetic colors for t.
func (t Theme) Palette() Palette {
	if t == ThemeLight {
		return Palette{
			Background: "transparent",
			Text:       "#4b5563",
			Grid:       "rgba(0, 0, 0, 0.05)",
			Border:     "rgba(0, 0, 0, 0.1)",
		}
	}
	return Palette{
		Background: "transparent",
		Text:       "#9ca3af",
		Grid:       "rgba(255, 255, 255, 0.05)",
		Border:     "rgba(255, 255, 255, 0.1)",
	}
}
