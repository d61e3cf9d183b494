package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is the decoded form of a DNS-SD TXT record.
type TXTRecordMap map[string]string

// EncodeServerTXT builds the TXT record for a server.
func EncodeServerTXT(info *ServerInfo) (TXTRecordMap, error) {
	if !info.Role.Valid() {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidTXTRecord, info.Role)
	}
	path := info.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: path %q", ErrInvalidTXTRecord, path)
	}

	txt := TXTRecordMap{
		TXTKeyPath: path,
		TXTKeyRole: string(info.Role),
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt, nil
}

// DecodeServerTXT parses a server TXT record. Secure, Port and Instance
// are not carried in TXT and are left zero.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	role, ok := txt[TXTKeyRole]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyRole)
	}
	if !Role(role).Valid() {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidTXTRecord, role)
	}
	path, ok := txt[TXTKeyPath]
	if !ok {
		path = DefaultPath
	}
	return &ServerInfo{
		Role:    Role(role),
		Path:    path,
		Version: txt[TXTKeyVersion],
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
