package asn

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

type asnRecord struct {
	Number       uint32 `maxminddb:"autonomous_system_number"`
	Organization string `maxminddb:"autonomous_system_organization"`
}

// LoadMMDB builds an index from a GeoLite2-ASN MMDB file.
func LoadMMDB(path string) (*Index, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmdb: %w", err)
	}
	defer db.Close()
	return fromReader(db)
}

// FromMMDB builds an index from the bytes of a GeoLite2-ASN MMDB.
func FromMMDB(data []byte) (*Index, error) {
	db, err := maxminddb.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmdb: %w", err)
	}
	defer db.Close()
	return fromReader(db)
}

func fromReader(db *maxminddb.Reader) (*Index, error) {
	if db.Metadata.DatabaseType != "" && db.Metadata.DatabaseType != "GeoLite2-ASN" && db.Metadata.DatabaseType != "GeoIP2-ISP" {
		return nil, fmt.Errorf("unexpected mmdb type %q", db.Metadata.DatabaseType)
	}

	x := NewIndex()
	networks := db.Networks(maxminddb.SkipAliasedNetworks)
	for networks.Next() {
		var rec asnRecord
		subnet, err := networks.Network(&rec)
		if err != nil {
			return nil, fmt.Errorf("decode network: %w", err)
		}
		if rec.Number == 0 {
			continue
		}
		x.Add(familyOf(subnet), rec.Number, subnet.String())
	}
	if err := networks.Err(); err != nil {
		return nil, fmt.Errorf("iterate networks: %w", err)
	}
	return x, nil
}

func familyOf(n *net.IPNet) Family {
	if len(n.IP) == net.IPv4len {
		return IPv4
	}
	return IPv6
}
