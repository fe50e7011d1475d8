package payments

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const referenceSeparator = "::"

// BuildExternalReference encodes the correlation token carried to the
// provider as external_reference. Each part is URL-escaped so tenant ids and
// order refs containing the separator cannot forge another tenant's token.
func BuildExternalReference(tenantID, orderRef string, intentID uuid.UUID) string {
	return strings.Join([]string{
		url.QueryEscape(tenantID),
		url.QueryEscape(orderRef),
		url.QueryEscape(intentID.String()),
	}, referenceSeparator)
}

// ParseExternalReference decodes a correlation token back into its parts.
func ParseExternalReference(token string) (tenantID, orderRef string, intentID uuid.UUID, err error) {
	parts := strings.Split(token, referenceSeparator)
	if len(parts) != 3 {
		return "", "", uuid.Nil, fmt.Errorf("malformed external reference %q", token)
	}

	tenantID, err = url.QueryUnescape(parts[0])
	if err != nil || tenantID == "" {
		return "", "", uuid.Nil, fmt.Errorf("malformed tenant in external reference %q", token)
	}
	orderRef, err = url.QueryUnescape(parts[1])
	if err != nil || orderRef == "" {
		return "", "", uuid.Nil, fmt.Errorf("malformed order ref in external reference %q", token)
	}
	rawIntent, err := url.QueryUnescape(parts[2])
	if err != nil {
		return "", "", uuid.Nil, fmt.Errorf("malformed intent in external reference %q", token)
	}
	intentID, err = uuid.Parse(rawIntent)
	if err != nil {
		return "", "", uuid.Nil, fmt.Errorf("malformed intent id in external reference %q", token)
	}
	return tenantID, orderRef, intentID, nil
}
