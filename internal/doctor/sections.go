package doctor

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/majorcontext/nupush/internal/auth"
	"github.com/majorcontext/nupush/internal/config"
	"github.com/majorcontext/nupush/internal/hosting"
	"github.com/majorcontext/nupush/internal/log"
	"github.com/majorcontext/nupush/internal/toolpath"
	"github.com/majorcontext/nupush/internal/ui"
)

// Default returns the standard sections for cfg.
func Default(cfg *config.Config) *Registry {
	reg := NewRegistry()
	reg.Register(&PolicySection{Config: cfg})
	reg.Register(&PrefixesSection{Config: cfg})
	reg.Register(&ToolsSection{Config: cfg, Locator: toolpath.New(cfg.AgentHomeDir)})
	reg.Register(&AgentSection{Config: cfg})
	return reg
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func overrideLabel(o hosting.Override) string {
	switch o {
	case hosting.ForceEnable, hosting.ForceDisable:
		return "forced " + string(o)
	case hosting.NoOverride:
		return "default"
	}
	return fmt.Sprintf("default (ignored override %q)", string(o))
}

// PolicySection shows hosted classification and both credential policies.
type PolicySection struct {
	Config *config.Config
}

func (s *PolicySection) Name() string { return "Credential Policy" }

func (s *PolicySection) Print(w io.Writer) error {
	p := s.Config.Policy()
	kind := "on-premises"
	if p.IsHosted() {
		kind = "hosted"
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Collection:\t%s\n", s.Config.CollectionURI)
	fmt.Fprintf(tw, "Classification:\t%s\n", kind)
	fmt.Fprintf(tw, "Credential provider:\t%s\t%s\n", ui.EnabledTag(p.CredentialProviderEnabled()), overrideLabel(p.ForceCredentialProvider))
	fmt.Fprintf(tw, "Credential config:\t%s\t%s\n", ui.EnabledTag(p.CredentialConfigEnabled()), overrideLabel(p.ForceCredentialConfig))
	return tw.Flush()
}

// PrefixesSection shows the URI prefixes the access token is scoped to.
type PrefixesSection struct {
	Config *config.Config
}

func (s *PrefixesSection) Name() string { return "Token Scope" }

func (s *PrefixesSection) Print(w io.Writer) error {
	prefixes, err := auth.DerivePrefixesWithSuffix(s.Config.CollectionURI, s.Config.HostedSuffix)
	if err != nil {
		return err
	}
	for _, p := range prefixes {
		fmt.Fprintf(w, "  %s\n", p)
	}
	for _, p := range s.Config.ExtraURIPrefixes {
		fmt.Fprintf(w, "  %s %s\n", p, ui.Dim("(extra)"))
	}
	return nil
}

// ToolsSection shows the client and credential provider that would be used.
type ToolsSection struct {
	Config  *config.Config
	Locator *toolpath.Locator
}

func (s *ToolsSection) Name() string { return "Tools" }

func (s *ToolsSection) Print(w io.Writer) error {
	tw := newTabWriter(w)
	if p, err := s.Locator.LocateNuGet(""); err != nil {
		fmt.Fprintf(tw, "NuGet:\t%s not found\n", ui.FailTag())
	} else {
		fmt.Fprintf(tw, "NuGet:\t%s %s\n", ui.OKTag(), p)
	}

	present, found := s.Locator.Locate(toolpath.CredentialProviderFilename, nil, false)
	switch {
	case !found:
		fmt.Fprintf(tw, "Credential provider:\t%s not present\n", ui.WarnTag())
	case !s.Config.Policy().CredentialProviderEnabled():
		fmt.Fprintf(tw, "Credential provider:\t%s %s\n", ui.Dim("present, disabled by policy:"), present)
	default:
		fmt.Fprintf(tw, "Credential provider:\t%s %s\n", ui.OKTag(), present)
	}
	return tw.Flush()
}

// AgentSection shows agent directories and whether a token is available.
type AgentSection struct {
	Config *config.Config
}

func (s *AgentSection) Name() string { return "Agent" }

func (s *AgentSection) Print(w io.Writer) error {
	orNone := func(v string) string {
		if v == "" {
			return ui.Dim("(not set)")
		}
		return v
	}
	token := ui.Dim("(not set)")
	if s.Config.AccessToken != "" {
		token = log.Redact(s.Config.AccessToken)
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Agent home:\t%s\n", orNone(s.Config.AgentHomeDir))
	fmt.Fprintf(tw, "Working directory:\t%s\n", orNone(s.Config.WorkingDir))
	fmt.Fprintf(tw, "Temp directory:\t%s\n", orNone(s.Config.TempDir))
	fmt.Fprintf(tw, "Access token:\t%s\n", token)
	return tw.Flush()
}
