// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/crashlens/crashlens/services/triage/model"
)

// Provider identifies which source-hosting service a validated URL
// belongs to. The provider drives path-shape checks during validation and
// content unwrapping after fetch.
type Provider string

const (
	ProviderGitHubRaw Provider = "github-raw"
	ProviderGitLab    Provider = "gitlab"
	ProviderAzure     Provider = "azure-devops"
)

// Host allowlist for raw content. The list is fixed and not
// configurable.
const (
	hostGitHubRaw        = "raw.githubusercontent.com"
	hostGitHubBrowse     = "github.com"
	hostGitLab           = "gitlab.com"
	hostAzure            = "dev.azure.com"
	suffixVisualStudio   = ".visualstudio.com"
	azureItemsAPIVersion = "7.0"
	minGitHubRawSegments = 4
	gitLabRawMarker      = "/-/raw/"
	gitLabBlobMarker     = "/-/blob/"
	azureItemsPathSuffix = "/items"
	azureGitAPIMarker    = "/_apis/git/"
	azureVersionDescKey  = "versionDescriptor.version"
	azureCommitPrefix    = "GC"
)

// azureQueryAllowlist lists the exact query keys an Azure DevOps Items
// API URL may carry. versionDescriptor.* keys are allowed by prefix.
var azureQueryAllowlist = map[string]bool{
	"path":           true,
	"download":       true,
	"includeContent": true,
	"resolveLfs":     true,
	"api-version":    true,
}

// forbiddenQueryKeyParts reject any query key that smells like a
// credential, regardless of host. Matched case-insensitively.
var forbiddenQueryKeyParts = []string{"token", "sig", "secret", "password", "access"}

// ValidatedURL is a raw-content URL that has passed every security check
// and may be handed to the fetcher.
type ValidatedURL struct {
	URL      *url.URL
	Provider Provider
}

// String returns the canonical form of the validated URL.
func (v *ValidatedURL) String() string {
	return v.URL.String()
}

// ResolveRawURL produces the single vetted raw-content URL for a frame,
// or reports that none exists.
//
// Description:
//
//	Tries the frame's raw URL first, then its browsable URL: each is
//	validated directly, and browsable provider pages (GitHub blob,
//	GitLab blob, Azure DevOps _git) are rewritten to their raw-content
//	form. Every inferred URL is re-run through the full validation rule
//	set before it is trusted; inference can never bypass validation.
//
//	An unresolvable frame is not an error. Validation rejections are
//	deliberately indistinguishable from absent locations so output
//	never tells an attacker which rule blocked them.
//
// Outputs:
//
//	*ValidatedURL - The vetted URL, nil when none resolved.
//	bool - Whether a URL resolved.
func ResolveRawURL(frame *model.StackFrame) (*ValidatedURL, bool) {
	for _, candidate := range []string{frame.RawURL, frame.SourceURL} {
		if candidate == "" {
			continue
		}
		u, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		if provider, err := validateRawURL(u); err == nil {
			return &ValidatedURL{URL: u, Provider: provider}, true
		}
		inferred := inferRawURL(u)
		if inferred == nil {
			continue
		}
		if provider, err := validateRawURL(inferred); err == nil {
			return &ValidatedURL{URL: inferred, Provider: provider}, true
		}
	}
	return nil, false
}

// revalidate re-runs full validation on an already-parsed URL. Used on
// post-redirect URLs before their body is trusted.
func revalidate(u *url.URL) error {
	_, err := validateRawURL(u)
	return err
}

// validateRawURL applies every security rule to a candidate raw URL.
// All errors wrap ErrValidationRejected; callers fold them into
// ErrUnavailable before anything user-visible is produced.
func validateRawURL(u *url.URL) (Provider, error) {
	if u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrValidationRejected, u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: embedded user info", ErrValidationRejected)
	}
	if port := u.Port(); port != "" && port != "443" {
		return "", fmt.Errorf("%w: port %s", ErrValidationRejected, port)
	}

	host := strings.ToLower(u.Hostname())
	provider, ok := providerForHost(host)
	if !ok {
		return "", fmt.Errorf("%w: host not allowlisted", ErrValidationRejected)
	}

	if err := validateQuery(u, provider); err != nil {
		return "", err
	}
	if err := validatePathShape(u, provider); err != nil {
		return "", err
	}

	return provider, nil
}

// providerForHost maps an allowlisted host to its provider.
func providerForHost(host string) (Provider, bool) {
	switch {
	case host == hostGitHubRaw:
		return ProviderGitHubRaw, true
	case host == hostGitLab:
		return ProviderGitLab, true
	case host == hostAzure, strings.HasSuffix(host, suffixVisualStudio):
		return ProviderAzure, true
	default:
		return "", false
	}
}

// validateQuery enforces the per-provider query policy. Non-Azure hosts
// may not carry a query string at all, which blocks token leakage through
// signed URLs. Azure needs its Items API query, so its keys are checked
// against a small allowlist instead.
func validateQuery(u *url.URL, provider Provider) error {
	if provider != ProviderAzure {
		if u.RawQuery != "" {
			return fmt.Errorf("%w: query string on non-azure host", ErrValidationRejected)
		}
		return nil
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return fmt.Errorf("%w: unparsable query", ErrValidationRejected)
	}

	for key := range values {
		lower := strings.ToLower(key)
		for _, part := range forbiddenQueryKeyParts {
			if strings.Contains(lower, part) {
				return fmt.Errorf("%w: credential-like query key", ErrValidationRejected)
			}
		}
		if azureQueryAllowlist[key] || strings.HasPrefix(key, "versionDescriptor.") {
			continue
		}
		return fmt.Errorf("%w: query key %q not allowed", ErrValidationRejected, key)
	}

	if values.Get("path") == "" {
		return fmt.Errorf("%w: missing path query key", ErrValidationRejected)
	}

	return nil
}

// validatePathShape enforces provider-specific URL path shapes so an
// allowlisted host cannot be pointed at arbitrary API surface.
func validatePathShape(u *url.URL, provider Provider) error {
	switch provider {
	case ProviderGitHubRaw:
		// owner/repo/ref/path... at minimum
		if len(pathSegments(u)) < minGitHubRawSegments {
			return fmt.Errorf("%w: short github raw path", ErrValidationRejected)
		}
	case ProviderGitLab:
		if !strings.Contains(u.Path, gitLabRawMarker) {
			return fmt.Errorf("%w: gitlab path is not a raw path", ErrValidationRejected)
		}
	case ProviderAzure:
		if !strings.Contains(u.Path, azureGitAPIMarker) ||
			!strings.HasSuffix(u.Path, azureItemsPathSuffix) {
			return fmt.Errorf("%w: azure path is not the git items api", ErrValidationRejected)
		}
	}
	return nil
}

// inferRawURL rewrites a browsable provider page into its raw-content
// form. Returns nil when the URL matches no known browsable shape. The
// result is untrusted until re-validated.
func inferRawURL(u *url.URL) *url.URL {
	host := strings.ToLower(u.Hostname())
	switch {
	case host == hostGitHubBrowse:
		return inferGitHubRaw(u)
	case host == hostGitLab:
		return inferGitLabRaw(u)
	case host == hostAzure, strings.HasSuffix(host, suffixVisualStudio):
		return inferAzureItems(u)
	default:
		return nil
	}
}

// inferGitHubRaw maps github.com/{owner}/{repo}/blob/{ref}/{path...} to
// the raw-content host.
func inferGitHubRaw(u *url.URL) *url.URL {
	segments := pathSegments(u)
	if len(segments) < 5 || segments[2] != "blob" {
		return nil
	}
	raw := *u
	raw.Scheme = "https"
	raw.Host = hostGitHubRaw
	raw.Path = "/" + strings.Join(append(segments[:2:2], segments[3:]...), "/")
	raw.RawQuery = ""
	raw.Fragment = ""
	raw.User = nil
	return &raw
}

// inferGitLabRaw maps {project}/-/blob/{ref}/{path} to {project}/-/raw/....
func inferGitLabRaw(u *url.URL) *url.URL {
	if !strings.Contains(u.Path, gitLabBlobMarker) {
		return nil
	}
	raw := *u
	raw.Scheme = "https"
	raw.Path = strings.Replace(u.Path, gitLabBlobMarker, gitLabRawMarker, 1)
	raw.RawQuery = ""
	raw.Fragment = ""
	raw.User = nil
	return &raw
}

// inferAzureItems maps a browsable Azure DevOps file page
// ({org}/{project}/_git/{repo}?path=...&version=...) onto the Git Items
// API with content inlined. A version value of form GC<sha> or <sha> is
// carried as versionDescriptor.version.
func inferAzureItems(u *url.URL) *url.URL {
	segments := pathSegments(u)
	gitIdx := -1
	for i, s := range segments {
		if s == "_git" {
			gitIdx = i
			break
		}
	}
	if gitIdx < 1 || gitIdx+1 >= len(segments) {
		return nil
	}
	repo := segments[gitIdx+1]
	prefix := segments[:gitIdx:gitIdx]

	values := u.Query()
	filePath := values.Get("path")
	if filePath == "" {
		return nil
	}

	query := url.Values{}
	query.Set("path", filePath)
	query.Set("includeContent", "true")
	query.Set("api-version", azureItemsAPIVersion)
	if version := values.Get("version"); version != "" {
		query.Set(azureVersionDescKey, strings.TrimPrefix(version, azureCommitPrefix))
	}

	raw := *u
	raw.Scheme = "https"
	raw.Path = "/" + strings.Join(append(prefix, "_apis", "git", "repositories", repo, "items"), "/")
	raw.RawQuery = query.Encode()
	raw.Fragment = ""
	raw.User = nil
	return &raw
}

// pathSegments splits a URL path into its non-empty segments.
func pathSegments(u *url.URL) []string {
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
