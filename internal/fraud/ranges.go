package fraud

import "net/netip"

// Hosting, cloud and anonymizer ranges.
var datacenterPrefixes = mustPrefixes(
	"3.0.0.0/9",        // AWS
	"13.32.0.0/15",     // AWS CloudFront
	"18.128.0.0/9",     // AWS
	"20.0.0.0/11",      // Azure
	"34.64.0.0/10",     // Google Cloud
	"35.184.0.0/13",    // Google Cloud
	"45.32.0.0/16",     // Vultr
	"104.16.0.0/13",    // Cloudflare
	"138.197.0.0/16",   // DigitalOcean
	"139.59.0.0/16",    // DigitalOcean
	"159.89.0.0/16",    // DigitalOcean
	"167.99.0.0/16",    // DigitalOcean
	"172.104.0.0/15",   // Linode
	"185.220.100.0/22", // Tor exit relays
	"2600:1f00::/24",   // AWS
	"2a03:b0c0::/32",   // DigitalOcean
)

// Consumer ISP ranges (fixed and mobile broadband).
var residentialPrefixes = mustPrefixes(
	"36.64.0.0/11",    // Telkom Indonesia
	"110.136.0.0/13",  // Telkom Indonesia
	"114.120.0.0/13",  // Telkomsel
	"180.240.0.0/13",  // Telkom Indonesia
	"182.0.0.0/12",    // Indosat Ooredoo
	"112.215.0.0/16",  // XL Axiata
	"103.47.132.0/22", // Biznet
	"49.128.0.0/11",   // Telkomsel
	"2001:448a::/32",  // Telkom Indonesia
)

func mustPrefixes(values ...string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		prefixes = append(prefixes, netip.MustParsePrefix(value))
	}
	return prefixes
}
