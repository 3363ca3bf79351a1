// Package taxonomy defines the fixed registry of event types a scan can
// produce.
//
// The registry is seeded into the store's event_types table at schema
// creation and is read-only afterwards. Each entry carries a human
// description, a category, and a raw flag marking large or opaque payloads
// that default listings exclude.
package taxonomy

import "fmt"

// Category classifies an event type.
type Category int

const (
	// Entity types name discrete things: hosts, addresses, people, orgs.
	Entity Category = iota

	// Data types carry supporting data about an entity.
	Data

	// Subentity types name components of an entity, such as an open port.
	Subentity

	// Internal types are bookkeeping events such as ROOT.
	Internal
)

// String returns the stored form of the category.
func (c Category) String() string {
	switch c {
	case Entity:
		return "ENTITY"
	case Data:
		return "DATA"
	case Subentity:
		return "SUBENTITY"
	case Internal:
		return "INTERNAL"
	}
	return "UNKNOWN"
}

// ParseCategory converts a stored category string back to a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "ENTITY":
		return Entity, nil
	case "DATA":
		return Data, nil
	case "SUBENTITY":
		return Subentity, nil
	case "INTERNAL":
		return Internal, nil
	}
	return 0, fmt.Errorf("unknown event category: %q", s)
}

// Type describes one registered event type.
type Type struct {
	// Name is the event type identifier, e.g. "IP_ADDRESS".
	Name string

	// Description is the human-readable description.
	Description string

	// Raw marks types whose payload is large or opaque; raw types are
	// excluded from default listings.
	Raw bool

	// Category classifies the type.
	Category Category
}

// catalog is the seed list of event types.
var catalog = []Type{
	{"ROOT", "Internal root event", true, Internal},
	{"IP_ADDRESS", "IP address", false, Entity},
	{"AFFILIATE_IPADDRESS", "Affiliate IP address", false, Entity},
	{"IPV6_ADDRESS", "IPv6 address", false, Entity},
	{"NETBLOCK_OWNER", "Owned netblock", false, Entity},
	{"NETBLOCK_MEMBER", "Netblock membership", false, Entity},
	{"NETBLOCK_WHOIS", "Netblock whois", false, Data},
	{"OPERATING_SYSTEM", "Operating system", false, Data},
	{"TCP_PORT_OPEN", "Open TCP port", false, Subentity},
	{"TCP_PORT_OPEN_BANNER", "Open TCP port banner", false, Data},
	{"TCP_PORT_SERVICE", "TCP port service", false, Data},
	{"TCP_PORT_PRODUCT", "TCP port product", false, Data},
	{"DEVICE_TYPE", "Device type", false, Data},
	{"TCP_PORT_RAW_DATA", "TCP port raw data", false, Data},
	{"DOMAIN_NAME", "Domain name", false, Entity},
	{"DOMAIN_NAME_PARENT", "Parent domain name", false, Entity},
	{"DOMAIN_WHOIS", "Domain whois", true, Data},
	{"AFFILIATE_DOMAIN_NAME", "Affiliate domain name", false, Entity},
	{"AFFILIATE_DOMAIN_WHOIS", "Affiliate domain whois", true, Data},
	{"INTERNET_NAME", "Internet name", false, Entity},
	{"AFFILIATE_INTERNET_NAME", "Affiliate internet name", false, Entity},
	{"DNS_MX", "DNS MX record", false, Data},
	{"DNS_NS", "DNS NS record", false, Data},
	{"DNS_A", "DNS A record", false, Data},
	{"DNS_SPF", "DNS SPF record", false, Data},
	{"DNS_AAAA", "DNS AAAA record", false, Data},
	{"DNS_CNAME", "DNS CNAME record", false, Data},
	{"DNS_CERTIFICATE", "DNS certification authority authorization", false, Data},
	{"DNS_TXT", "DNS TXT record", false, Data},
	{"RDNS", "Reverse DNS record", false, Data},
	{"RAW_DNS_RECORDS", "Raw DNS records", true, Data},
	{"WEBSERVER_URL", "Web server URL", false, Entity},
	{"WEBSERVER_BANNER", "Web server banner", false, Data},
	{"WEBSERVER_IP", "Web server IP address", false, Data},
	{"WEBSERVER_TITLE", "Web server title", false, Data},
	{"WEBSERVER_COOKIE", "Web server cookie", false, Data},
	{"WEBSERVER_APPLICATION", "Web server application", false, Data},
	{"WEBSERVER_PATH", "Web server path", false, Data},
	{"WEBSERVER_FRAMEWORK", "Web server framework", false, Data},
	{"SSL_CERTIFICATE_RAW", "SSL certificate raw data", true, Data},
	{"SSL_CERTIFICATE_ISSUED", "SSL certificate holder", false, Entity},
	{"SSL_CERTIFICATE_ISSUER", "SSL certificate issuer", false, Entity},
	{"BGP_AS_MEMBER", "BGP AS membership", false, Entity},
	{"ORG", "Organization", false, Entity},
	{"RAW_RIR_DATA", "Raw RIR data", true, Data},
	{"EMAILADDR", "Email address", false, Entity},
	{"EMAILADDR_GENERIC", "Generic email address", false, Entity},
	{"AFFILIATE_EMAILADDR", "Affiliate email address", false, Entity},
	{"PHONE_NUMBER", "Phone number", false, Entity},
	{"PHYSICAL_ADDRESS", "Physical address", false, Entity},
	{"VULNERABILITY", "Vulnerability", false, Data},
	{"COMPANY_NAME", "Company name", false, Entity},
	{"AFFILIATE_COMPANY_NAME", "Affiliate company name", false, Entity},
	{"PUBLIC_CODE_REPO", "Public code repository", false, Entity},
	{"USERNAME", "Username", false, Entity},
	{"LINKED_URL", "Linked URL", false, Subentity},
	{"APPSTORE_ENTRY", "App store entry", false, Entity},
	{"PROVIDER_TELCO", "Telco provider", false, Entity},
}

var index = func() map[string]Type {
	m := make(map[string]Type, len(catalog))
	for _, t := range catalog {
		m[t.Name] = t
	}
	return m
}()

// Catalog returns all registered event types in seed order.
// The returned slice is a copy and may be modified by the caller.
func Catalog() []Type {
	out := make([]Type, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the entry for an event type name.
func Lookup(name string) (Type, bool) {
	t, ok := index[name]
	return t, ok
}

// IsKnown reports whether name is a registered event type.
func IsKnown(name string) bool {
	_, ok := index[name]
	return ok
}
