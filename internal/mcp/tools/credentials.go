package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/snow"
)

var credentialsLogger = logging.GetLogger("tools.credentials")

// CredentialsInput is the parameter shape of manage_discovery_credentials.
// There is deliberately no field for secret values: create and update only
// touch metadata, secret material is managed in the instance itself.
type CredentialsInput struct {
	Action         string `json:"action"`
	CredentialID   string `json:"credential_id,omitempty"`
	Name           string `json:"name,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	Tag            string `json:"tag,omitempty"`
	Order          *int   `json:"order,omitempty"`
	Active         *bool  `json:"active,omitempty"`
	ActiveOnly     bool   `json:"active_only,omitempty"`
	FilterType     string `json:"filter_type,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// CredentialsTool manages discovery_credential metadata. Every record
// passes through the sanitizing normalizer, so secret fields never appear
// in a response regardless of what the instance returns.
type CredentialsTool struct {
	client TableClient
}

func NewCredentialsTool(client TableClient) *CredentialsTool {
	return &CredentialsTool{client: client}
}

func (t *CredentialsTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params CredentialsInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "list", "":
		return t.list(ctx, params), nil
	case "get":
		return t.get(ctx, params), nil
	case "create":
		return t.create(ctx, params), nil
	case "update":
		return t.update(ctx, params), nil
	case "delete":
		return t.delete(ctx, params), nil
	default:
		return invalidAction(action, []string{"list", "get", "create", "update", "delete"}), nil
	}
}

func (t *CredentialsTool) list(ctx context.Context, params CredentialsInput) *Response {
	q := snow.NewQuery().OrderBy("order")
	if params.FilterType != "" {
		q = q.Where("type", snow.OpEquals, params.FilterType)
	}
	if params.ActiveOnly {
		q = q.Where("active", snow.OpEquals, "true")
	}
	limit := clampLimit(params.Limit, maxListLimit, maxListLimit)
	creds, err := fetchCredentials(ctx, t.client, q, limit)
	if err != nil {
		return fail("list", err)
	}
	return ok("list", fmt.Sprintf("Found %s", fmtCount(len(creds), "credential", "credentials")), map[string]interface{}{
		"credentials": credentialViews(creds),
		"count":       len(creds),
	})
}

func (t *CredentialsTool) get(ctx context.Context, params CredentialsInput) *Response {
	sysID, err := requireSysID(params.CredentialID, "credential_id")
	if err != nil {
		return fail("get", err)
	}
	rec, err := t.client.Get(ctx, discovery.TableCredential, sysID, credentialFields)
	if err != nil {
		return fail("get", err)
	}
	cred := discovery.CredentialRefFromRecord(rec)
	return ok("get", fmt.Sprintf("Retrieved credential %q (%s)", cred.Name, sysID), credentialView(cred))
}

func (t *CredentialsTool) create(ctx context.Context, params CredentialsInput) *Response {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return fail("create", snow.InvalidParameter("name is required for the create action"))
	}
	credType := strings.TrimSpace(params.CredentialType)
	if credType == "" {
		return fail("create", snow.InvalidParameter("credential_type is required for the create action"))
	}

	fields := snow.Record{
		"name":   name,
		"type":   credType,
		"active": boolField(params.Active, true),
	}
	if tag := strings.TrimSpace(params.Tag); tag != "" {
		fields["tag"] = tag
	}
	if params.Order != nil {
		fields["order"] = strconv.Itoa(*params.Order)
	}

	created, err := t.client.Create(ctx, discovery.TableCredential, fields)
	if err != nil {
		return fail("create", err)
	}
	cred := discovery.CredentialRefFromRecord(created)
	credentialsLogger.InfoWithFields("created discovery credential",
		logging.Field("credential_id", cred.SysID),
		logging.Field("name", cred.Name),
		logging.Field("type", cred.Type))
	return ok("create", fmt.Sprintf("Created credential %q (%s)", cred.Name, cred.SysID), credentialView(cred))
}

func (t *CredentialsTool) update(ctx context.Context, params CredentialsInput) *Response {
	sysID, err := requireSysID(params.CredentialID, "credential_id")
	if err != nil {
		return fail("update", err)
	}

	fields := snow.Record{}
	if params.Name != "" {
		fields["name"] = strings.TrimSpace(params.Name)
	}
	if params.CredentialType != "" {
		fields["type"] = strings.TrimSpace(params.CredentialType)
	}
	if params.Tag != "" {
		fields["tag"] = strings.TrimSpace(params.Tag)
	}
	if params.Order != nil {
		fields["order"] = strconv.Itoa(*params.Order)
	}
	if params.Active != nil {
		fields["active"] = strconv.FormatBool(*params.Active)
	}
	if len(fields) == 0 {
		return fail("update", snow.InvalidParameter(
			"at least one field must be provided for update (name, credential_type, tag, order, active)"))
	}

	updated, err := t.client.Update(ctx, discovery.TableCredential, sysID, fields)
	if err != nil {
		return fail("update", err)
	}
	cred := discovery.CredentialRefFromRecord(updated)
	credentialsLogger.InfoWithFields("updated discovery credential",
		logging.Field("credential_id", sysID),
		logging.Field("fields", len(fields)))
	return ok("update", fmt.Sprintf("Updated credential %q (%s)", cred.Name, sysID), credentialView(cred))
}

func (t *CredentialsTool) delete(ctx context.Context, params CredentialsInput) *Response {
	sysID, err := requireSysID(params.CredentialID, "credential_id")
	if err != nil {
		return fail("delete", err)
	}
	if err := t.client.Delete(ctx, discovery.TableCredential, sysID); err != nil {
		return fail("delete", err)
	}
	credentialsLogger.InfoWithFields("deleted discovery credential", logging.Field("credential_id", sysID))
	return ok("delete", fmt.Sprintf("Deleted credential (%s)", sysID), map[string]string{"sys_id": sysID})
}
