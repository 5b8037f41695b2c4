package inspect

import (
	"slices"
	"strings"
)

// Attribute names accepted after ':' in a path.
const (
	AttrValue            = "value"
	AttrType             = "type"
	AttrAccess           = "access"
	AttrBounding         = "bounding"
	AttrDomain           = "domain"
	AttrUnit             = "unit"
	AttrDescription      = "description"
	AttrTags             = "tags"
	AttrExtendedType     = "extended_type"
	AttrHidden           = "hidden"
	AttrCritical         = "critical"
	AttrMuted            = "muted"
	AttrDisabled         = "disabled"
	AttrRepetitionFilter = "repetition_filter"
	AttrRefreshRate      = "refresh_rate"
	AttrPriority         = "priority"
	AttrStepSize         = "step_size"
	AttrDefault          = "default"
)

// attributeNames maps accepted spellings to attribute names. Aliases cover
// the OSCQuery and Minuit spellings users tend to type.
var attributeNames = map[string]string{
	AttrValue:            AttrValue,
	AttrType:             AttrType,
	AttrAccess:           AttrAccess,
	AttrBounding:         AttrBounding,
	AttrDomain:           AttrDomain,
	AttrUnit:             AttrUnit,
	AttrDescription:      AttrDescription,
	AttrTags:             AttrTags,
	AttrExtendedType:     AttrExtendedType,
	AttrHidden:           AttrHidden,
	AttrCritical:         AttrCritical,
	AttrMuted:            AttrMuted,
	AttrDisabled:         AttrDisabled,
	AttrRepetitionFilter: AttrRepetitionFilter,
	AttrRefreshRate:      AttrRefreshRate,
	AttrPriority:         AttrPriority,
	AttrStepSize:         AttrStepSize,
	AttrDefault:          AttrDefault,

	"clipmode":      AttrBounding,
	"rangeclipmode": AttrBounding,
	"range":         AttrDomain,
	"rangebounds":   AttrDomain,
	"dataspaceunit": AttrUnit,
	"extendedtype":  AttrExtendedType,
	"repetitions":   AttrRepetitionFilter,
	"refreshrate":   AttrRefreshRate,
	"stepsize":      AttrStepSize,
	"default_value": AttrDefault,
	"service":       AttrAccess,
}

// ResolveAttributeName resolves an attribute name or alias (case-insensitive).
func ResolveAttributeName(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	attr, ok := attributeNames[key]
	return attr, ok
}

// AttributeNames returns the canonical attribute names, sorted.
func AttributeNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, attr := range attributeNames {
		if !seen[attr] {
			seen[attr] = true
			names = append(names, attr)
		}
	}
	slices.Sort(names)
	return names
}
