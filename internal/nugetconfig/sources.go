package nugetconfig

import "strings"

// Section and key names of the NuGet config schema.
const (
	sourcesSection     = "packageSources"
	credentialsSection = "packageSourceCredentials"
	disabledSection    = "disabledPackageSources"

	usernameKey          = "Username"
	clearTextPasswordKey = "ClearTextPassword"
	passwordKey          = "Password"
)

// PackageSource is one entry of <packageSources>. Names are unique, compared
// without regard to case.
type PackageSource struct {
	Name string
	URI  string
}

// Credential is one entry of <packageSourceCredentials>.
type Credential struct {
	Source   string
	Username string
	// Password is the clear-text password, or "" when only an encrypted
	// password is present.
	Password  string
	Encrypted bool
}

func (d *document) sources() []PackageSource {
	section := d.root.child(sourcesSection, false)
	if section == nil {
		return nil
	}
	var out []PackageSource
	for _, add := range section.elements("add") {
		name, _ := add.attr("key")
		uri, _ := add.attr("value")
		out = append(out, PackageSource{Name: name, URI: uri})
	}
	return out
}

func (d *document) credentials() []Credential {
	section := d.root.child(credentialsSection, false)
	if section == nil {
		return nil
	}
	var out []Credential
	for _, c := range section.children {
		if c.kind != elementNode {
			continue
		}
		cred := Credential{Source: decodeName(c.name)}
		for _, add := range c.elements("add") {
			key, _ := add.attr("key")
			value, _ := add.attr("value")
			switch {
			case strings.EqualFold(key, usernameKey):
				cred.Username = value
			case strings.EqualFold(key, clearTextPasswordKey):
				cred.Password = value
			case strings.EqualFold(key, passwordKey):
				cred.Encrypted = true
			}
		}
		out = append(out, cred)
	}
	return out
}

// removeSource deletes the source called name together with its credential
// and disabled-source entries.
func (d *document) removeSource(name string) {
	keyed := func(n *node) bool {
		if n.kind != elementNode || n.name != "add" {
			return false
		}
		key, _ := n.attr("key")
		return strings.EqualFold(key, name)
	}
	if section := d.root.child(sourcesSection, false); section != nil {
		section.removeChildren(keyed)
	}
	if section := d.root.child(disabledSection, false); section != nil {
		section.removeChildren(keyed)
	}
	if section := d.root.child(credentialsSection, false); section != nil {
		section.removeChildren(func(n *node) bool {
			return n.kind == elementNode && strings.EqualFold(decodeName(n.name), name)
		})
	}
}

func (d *document) addSource(src PackageSource) {
	section := d.root.child(sourcesSection, true)
	section.children = append(section.children, newAdd(src.Name, src.URI))
}

func (d *document) setCredential(source, username, password string) {
	section := d.root.child(credentialsSection, true)
	section.removeChildren(func(n *node) bool {
		return n.kind == elementNode && strings.EqualFold(decodeName(n.name), source)
	})
	section.children = append(section.children, &node{
		kind: elementNode,
		name: encodeName(source),
		children: []*node{
			newAdd(usernameKey, username),
			newAdd(clearTextPasswordKey, password),
		},
	})
}
