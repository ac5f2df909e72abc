package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/v1/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	AuthTypeAPIKey = "apiKey"
	AuthTypeOAuth2 = "oauth2"

	socialTarget = "social_graph"

	// maxBatchSize matches the result limit in profileQuerySource
	maxBatchSize = 200
)

// profileQuerySource selects the social profiles and primary domains owned by
// a batch of addresses.
const profileQuerySource = `
query ResolveProfiles($addresses: [Identity!]) {
  Socials(input: {filter: {identity: {_in: $addresses}}, blockchain: ethereum, limit: 200}) {
    Social {
      userAssociatedAddresses
      profileName
      dappName
    }
  }
  Domains(input: {filter: {owner: {_in: $addresses}, isPrimary: {_eq: true}}, blockchain: ethereum, limit: 200}) {
    Domain {
      owner
      name
    }
  }
}`

var whitespace = regexp.MustCompile(`\s+`)

// compiledQuery is a parsed, validated and compacted GraphQL operation
type compiledQuery struct {
	Query         string
	OperationName string
}

// compileQuery parses src, checks it holds one named query declaring every
// required variable and prints it on a single line.
func compileQuery(src string, requiredVars ...string) (compiledQuery, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: source.NewSource(&source.Source{
		Body: []byte(src),
		Name: "social profile query",
	})})
	if err != nil {
		return compiledQuery{}, fmt.Errorf("failed to parse query: %w", err)
	}

	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		if d, ok := def.(*ast.OperationDefinition); ok {
			if op != nil {
				return compiledQuery{}, fmt.Errorf("query must contain exactly one operation")
			}
			op = d
		}
	}
	if op == nil || op.Operation != ast.OperationTypeQuery {
		return compiledQuery{}, fmt.Errorf("query must contain a query operation")
	}
	if op.Name == nil || op.Name.Value == "" {
		return compiledQuery{}, fmt.Errorf("query operation must be named")
	}

	declared := make(map[string]bool, len(op.VariableDefinitions))
	for _, v := range op.VariableDefinitions {
		declared[v.Variable.Name.Value] = true
	}
	for _, name := range requiredVars {
		if !declared[name] {
			return compiledQuery{}, fmt.Errorf("query does not declare $%s", name)
		}
	}

	return compiledQuery{Query: printCompact(doc), OperationName: op.Name.Value}, nil
}

func printCompact(doc *ast.Document) string {
	out, _ := printer.Print(doc).(string)
	return strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
}

// AuthConfig selects how requests to the social endpoint are authenticated
type AuthConfig struct {
	// Type is AuthTypeAPIKey, AuthTypeOAuth2 or empty for none
	Type         string
	APIKeyName   string
	APIKeyValue  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// GraphQLResolver resolves profiles through a GraphQL social graph API
type GraphQLResolver struct {
	endpoint string
	auth     *AuthConfig
	client   *http.Client
	query    compiledQuery
}

// NewGraphQLResolver creates a resolver for endpoint. A nil auth sends
// unauthenticated requests.
func NewGraphQLResolver(endpoint string, auth *AuthConfig, timeout time.Duration) (*GraphQLResolver, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("social endpoint is required")
	}
	query, err := compileQuery(profileQuerySource, "addresses")
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: timeout}
	if auth != nil {
		switch auth.Type {
		case AuthTypeOAuth2:
			if auth.TokenURL == "" || auth.ClientID == "" {
				return nil, fmt.Errorf("oauth2 auth requires a token URL and client ID")
			}
			cc := &clientcredentials.Config{
				ClientID:     auth.ClientID,
				ClientSecret: auth.ClientSecret,
				TokenURL:     auth.TokenURL,
				Scopes:       auth.Scopes,
			}
			client.Transport = &oauth2.Transport{
				Source: cc.TokenSource(context.Background()),
				Base:   http.DefaultTransport,
			}
		case AuthTypeAPIKey:
			if auth.APIKeyName == "" || auth.APIKeyValue == "" {
				return nil, fmt.Errorf("apiKey auth requires a header name and value")
			}
		case "":
		default:
			return nil, fmt.Errorf("unsupported social auth type %q", auth.Type)
		}
	}

	return &GraphQLResolver{endpoint: endpoint, auth: auth, client: client, query: query}, nil
}

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type profileQueryResponse struct {
	Data struct {
		Socials struct {
			Social []struct {
				UserAssociatedAddresses []string `json:"userAssociatedAddresses"`
				ProfileName             string   `json:"profileName"`
				DappName                string   `json:"dappName"`
			} `json:"Social"`
		} `json:"Socials"`
		Domains struct {
			Domain []struct {
				Owner string `json:"owner"`
				Name  string `json:"name"`
			} `json:"Domain"`
		} `json:"Domains"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Resolve queries the social graph for addresses in batches of at most
// maxBatchSize. Blank addresses are never sent.
func (r *GraphQLResolver) Resolve(ctx context.Context, addresses []string) (map[string]models.Profile, error) {
	addresses = filterAddresses(addresses)
	profiles := make(map[string]models.Profile, len(addresses))

	for batch := range slices.Chunk(addresses, maxBatchSize) {
		found, err := r.resolveBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		maps.Copy(profiles, found)
	}

	slog.Debug("Resolved social profiles", "requested", len(addresses), "found", len(profiles))
	return profiles, nil
}

func (r *GraphQLResolver) resolveBatch(ctx context.Context, addresses []string) (map[string]models.Profile, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:         r.query.Query,
		OperationName: r.query.OperationName,
		Variables:     map[string]interface{}{"addresses": addresses},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode social query: %w", err)
	}

	start := time.Now()
	resp, err := r.performRequest(ctx, body)
	monitoring.RecordExternalCall(socialTarget, "resolve_profiles", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: social query failed: %w", models.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: social query returned %d: %s", models.ErrServiceUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded profileQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode social response: %w", models.ErrServiceUnavailable, err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("%w: social query error: %s", models.ErrServiceUnavailable, decoded.Errors[0].Message)
	}

	return collectProfiles(addresses, &decoded), nil
}

func (r *GraphQLResolver) performRequest(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.auth != nil && r.auth.Type == AuthTypeAPIKey {
		req.Header.Set(r.auth.APIKeyName, r.auth.APIKeyValue)
	}
	return r.client.Do(req)
}

// collectProfiles attributes names back to the requested addresses. The graph
// may return addresses in a different letter case than requested.
func collectProfiles(requested []string, resp *profileQueryResponse) map[string]models.Profile {
	byFold := make(map[string][]string, len(requested))
	for _, a := range requested {
		key := strings.ToLower(a)
		byFold[key] = append(byFold[key], a)
	}

	acc := make(map[string]*models.Profile)
	profile := func(address string) *models.Profile {
		p, ok := acc[address]
		if !ok {
			p = &models.Profile{Address: address}
			acc[address] = p
		}
		return p
	}

	for _, s := range resp.Data.Socials.Social {
		if s.ProfileName == "" {
			continue
		}
		for _, owner := range s.UserAssociatedAddresses {
			for _, a := range byFold[strings.ToLower(owner)] {
				p := profile(a)
				p.SocialNames = appendUnique(p.SocialNames, s.ProfileName)
			}
		}
	}
	for _, d := range resp.Data.Domains.Domain {
		if d.Name == "" {
			continue
		}
		for _, a := range byFold[strings.ToLower(d.Owner)] {
			p := profile(a)
			p.DomainNames = appendUnique(p.DomainNames, d.Name)
		}
	}

	out := make(map[string]models.Profile, len(acc))
	for a, p := range acc {
		out[a] = *p
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
