// Package zgw talks to the external ZGW registries (zaken, documenten,
// catalogi). The wire format is theirs; descriptors handed to the rest
// of the service use the internal vocabulary.
package zgw

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"case-access-service/internal/permissions"
)

// Cache stores resolved descriptors for a while so bulk permission
// checks do not hammer the registries. Implemented by the redis
// repository.
type Cache interface {
	GetStructCached(ctx context.Context, key string, model any) error
	SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) (bool, error)
}

type Config struct {
	CatalogiBaseURL string
	Token           string
	Timeout         time.Duration
	CacheTTL        time.Duration
}

type Client struct {
	http     *http.Client
	config   Config
	cache    Cache
	cacheTTL time.Duration
}

func NewClient(config Config, cache Cache) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		http:     &http.Client{Timeout: timeout},
		config:   config,
		cache:    cache,
		cacheTTL: config.CacheTTL,
	}
}

// Wire types, field names as the ZGW APIs define them.

type zaak struct {
	URL                         string `json:"url"`
	Identificatie               string `json:"identificatie"`
	Zaaktype                    string `json:"zaaktype"`
	Vertrouwelijkheidaanduiding string `json:"vertrouwelijkheidaanduiding"`
}

type zaaktype struct {
	URL          string `json:"url"`
	Catalogus    string `json:"catalogus"`
	Omschrijving string `json:"omschrijving"`
}

type document struct {
	URL                         string `json:"url"`
	Identificatie               string `json:"identificatie"`
	Informatieobjecttype        string `json:"informatieobjecttype"`
	Vertrouwelijkheidaanduiding string `json:"vertrouwelijkheidaanduiding"`
}

type rol struct {
	BetrokkeneType          string `json:"betrokkeneType"`
	OmschrijvingGeneriek    string `json:"omschrijvingGeneriek"`
	BetrokkeneIdentificatie struct {
		Identificatie string `json:"identificatie"`
	} `json:"betrokkeneIdentificatie"`
}

type paginated[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// ResolveObject resolves any registered object type to its descriptor.
func (c *Client) ResolveObject(ctx context.Context, objectType, url string) (*permissions.ObjectDescriptor, error) {
	switch objectType {
	case permissions.ObjectTypeCase:
		return c.ResolveCase(ctx, url)
	case permissions.ObjectTypeDocument:
		return c.ResolveDocument(ctx, url)
	default:
		return nil, fmt.Errorf("%w: '%s'", permissions.ErrUnknownObjectType, objectType)
	}
}

// ResolveCase fetches a case and flattens it into a descriptor: case
// type (catalog + description), confidentiality and involved roles.
func (c *Client) ResolveCase(ctx context.Context, url string) (*permissions.ObjectDescriptor, error) {
	cacheKey := "zgw:case:" + url
	var cached permissions.ObjectDescriptor
	if err := c.cacheGet(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	var z zaak
	if err := c.get(ctx, url, &z); err != nil {
		return nil, err
	}

	caseType, err := c.resolveCaseType(ctx, z.Zaaktype)
	if err != nil {
		return nil, err
	}

	roles, err := c.CaseRoles(ctx, url)
	if err != nil {
		return nil, err
	}

	descriptor := &permissions.ObjectDescriptor{
		URL:             z.URL,
		Type:            permissions.ObjectTypeCase,
		Identification:  z.Identificatie,
		ObjectType:      caseType,
		Confidentiality: z.Vertrouwelijkheidaanduiding,
		Roles:           roles,
	}

	c.cacheSet(ctx, cacheKey, descriptor)
	return descriptor, nil
}

// ResolveDocument fetches a document and flattens it into a descriptor.
func (c *Client) ResolveDocument(ctx context.Context, url string) (*permissions.ObjectDescriptor, error) {
	cacheKey := "zgw:document:" + url
	var cached permissions.ObjectDescriptor
	if err := c.cacheGet(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	var d document
	if err := c.get(ctx, url, &d); err != nil {
		return nil, err
	}

	documentType, err := c.resolveDocumentType(ctx, d.Informatieobjecttype)
	if err != nil {
		return nil, err
	}

	descriptor := &permissions.ObjectDescriptor{
		URL:             d.URL,
		Type:            permissions.ObjectTypeDocument,
		Identification:  d.Identificatie,
		ObjectType:      documentType,
		Confidentiality: d.Vertrouwelijkheidaanduiding,
	}

	c.cacheSet(ctx, cacheKey, descriptor)
	return descriptor, nil
}

// CaseRoles lists the involved parties of a case. The rollen endpoint
// lives next to the /zaken/ segment of the case URL.
func (c *Client) CaseRoles(ctx context.Context, caseURL string) ([]permissions.CaseRole, error) {
	root, _, found := strings.Cut(caseURL, "/zaken/")
	if !found {
		return nil, fmt.Errorf("case URL '%s' has no /zaken/ segment", caseURL)
	}
	rollenURL := strings.TrimSuffix(root, "/") + "/rollen?zaak=" + caseURL
	rollen, err := listAll[rol](ctx, c, rollenURL)
	if err != nil {
		return nil, err
	}

	roles := make([]permissions.CaseRole, len(rollen))
	for i, r := range rollen {
		roles[i] = permissions.CaseRole{
			Type:           mapBetrokkeneType(r.BetrokkeneType),
			GenericRole:    mapGenericRole(r.OmschrijvingGeneriek),
			Identification: r.BetrokkeneIdentificatie.Identificatie,
		}
	}

	return roles, nil
}

// IsHandler reports whether the user is an assigned handler
// (behandelaar) on the case. Satisfies permissions.HandlerResolver.
func (c *Client) IsHandler(ctx context.Context, caseURL, username string) (bool, error) {
	roles, err := c.CaseRoles(ctx, caseURL)
	if err != nil {
		return false, err
	}

	for _, role := range roles {
		if role.GenericRole == permissions.GenericRoleHandler &&
			role.Type == permissions.RoleTypeEmployee &&
			role.Identification == username {
			return true, nil
		}
	}

	return false, nil
}

// ListCaseTypes returns every case type of a catalog.
func (c *Client) ListCaseTypes(ctx context.Context, catalog string) ([]permissions.TypeRef, error) {
	url := c.config.CatalogiBaseURL + "/zaaktypen?catalogus=" + catalog
	types, err := listAll[zaaktype](ctx, c, url)
	if err != nil {
		return nil, err
	}

	refs := make([]permissions.TypeRef, len(types))
	for i, zt := range types {
		refs[i] = permissions.TypeRef{
			URL:         zt.URL,
			Catalog:     zt.Catalogus,
			Description: zt.Omschrijving,
		}
	}

	return refs, nil
}

func (c *Client) resolveCaseType(ctx context.Context, url string) (permissions.TypeRef, error) {
	cacheKey := "zgw:casetype:" + url
	var cached permissions.TypeRef
	if err := c.cacheGet(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	var zt zaaktype
	if err := c.get(ctx, url, &zt); err != nil {
		return permissions.TypeRef{}, err
	}

	ref := permissions.TypeRef{URL: zt.URL, Catalog: zt.Catalogus, Description: zt.Omschrijving}
	c.cacheSet(ctx, cacheKey, ref)
	return ref, nil
}

func (c *Client) resolveDocumentType(ctx context.Context, url string) (permissions.TypeRef, error) {
	cacheKey := "zgw:documenttype:" + url
	var cached permissions.TypeRef
	if err := c.cacheGet(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	// informatieobjecttypen live in the catalogi API with the same shape
	var zt zaaktype
	if err := c.get(ctx, url, &zt); err != nil {
		return permissions.TypeRef{}, err
	}

	ref := permissions.TypeRef{URL: zt.URL, Catalog: zt.Catalogus, Description: zt.Omschrijving}
	c.cacheSet(ctx, cacheKey, ref)
	return ref, nil
}

func listAll[T any](ctx context.Context, c *Client, url string) ([]T, error) {
	var all []T
	for url != "" {
		var page paginated[T]
		if err := c.get(ctx, url, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		url = page.Next
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", url, permissions.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request to %s failed with status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	return nil
}

func (c *Client) cacheGet(ctx context.Context, key string, into any) error {
	if c.cache == nil {
		return fmt.Errorf("no cache configured")
	}
	return c.cache.GetStructCached(ctx, key, into)
}

func (c *Client) cacheSet(ctx context.Context, key string, value any) {
	if c.cache == nil {
		return
	}
	if _, err := c.cache.SaveStructCached(ctx, key, value, c.cacheTTL); err != nil {
		log.Printf("Warning: failed to cache %s: %v", key, err)
	}
}

func mapBetrokkeneType(betrokkeneType string) string {
	switch betrokkeneType {
	case "medewerker":
		return permissions.RoleTypeEmployee
	case "organisatorische_eenheid":
		return permissions.RoleTypeOrganizationalUnit
	default:
		return betrokkeneType
	}
}

func mapGenericRole(omschrijving string) string {
	if omschrijving == "behandelaar" {
		return permissions.GenericRoleHandler
	}
	return omschrijving
}
