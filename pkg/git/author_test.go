package git

import "testing"

func TestResolveAuthor(t *testing.T) {
	tests := []struct {
		name string
		opts AuthorOptions
		want Author
	}{
		{
			name: "defaults",
			opts: AuthorOptions{SkipGlobalConfig: true},
			want: Author{Name: DefaultAuthorName, Email: DefaultAuthorEmail},
		},
		{
			name: "env overrides defaults",
			opts: AuthorOptions{SkipGlobalConfig: true, EnvName: "Env Bot", EnvEmail: "env@example.com"},
			want: Author{Name: "Env Bot", Email: "env@example.com"},
		},
		{
			name: "explicit overrides env",
			opts: AuthorOptions{
				SkipGlobalConfig: true,
				EnvName:          "Env Bot",
				EnvEmail:         "env@example.com",
				ExplicitName:     "Config Bot",
			},
			want: Author{Name: "Config Bot", Email: "env@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAuthor(tt.opts)
			if got != tt.want {
				t.Errorf("ResolveAuthor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorFromEnv(t *testing.T) {
	t.Setenv("GIT_AUTHOR_NAME", "From Env")
	t.Setenv("GIT_AUTHOR_EMAIL", "from-env@example.com")

	got := AuthorFromEnv("", "")
	if got.Name != "From Env" || got.Email != "from-env@example.com" {
		t.Errorf("AuthorFromEnv() = %v, want From Env <from-env@example.com>", got)
	}

	got = AuthorFromEnv("Explicit", "")
	if got.Name != "Explicit" {
		t.Errorf("AuthorFromEnv() name = %q, want Explicit", got.Name)
	}
}

func TestFormatGitAuthor(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"Docs Agent", "docs@example.com", "Docs Agent <docs@example.com>"},
		{"", "docs@example.com", "docs@example.com"},
		{"Docs Agent", "", "Docs Agent"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := FormatGitAuthor(tt.name, tt.email); got != tt.want {
			t.Errorf("FormatGitAuthor(%q, %q) = %q, want %q", tt.name, tt.email, got, tt.want)
		}
	}
}

func TestParseGitAuthor(t *testing.T) {
	tests := []struct {
		input     string
		wantName  string
		wantEmail string
	}{
		{"Docs Agent <docs@example.com>", "Docs Agent", "docs@example.com"},
		{"  Spaced  <s@example.com>  ", "Spaced", "s@example.com"},
		{"NoEmail", "NoEmail", ""},
		{"Odd <a> Name <b@example.com>", "Odd <a> Name", "b@example.com"},
	}
	for _, tt := range tests {
		name, email := ParseGitAuthor(tt.input)
		if name != tt.wantName || email != tt.wantEmail {
			t.Errorf("ParseGitAuthor(%q) = (%q, %q), want (%q, %q)", tt.input, name, email, tt.wantName, tt.wantEmail)
		}
	}
}

func TestAuthor_String(t *testing.T) {
	a := Author{Name: "Docs Agent", Email: "docs@example.com"}
	if got := a.String(); got != "Docs Agent <docs@example.com>" {
		t.Errorf("Author.String() = %q", got)
	}
}
