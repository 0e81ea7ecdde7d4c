// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	NotAnIntegrationId Id = iota + 1
	IntegrationInvalidId
	MissingScriptId
	DependencyResolutionFailedId
	DependencyDownloadFailedId
	DuplicateIntegrationId
	OutputInsideSourceId
	MarketplaceRootNotFoundId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render returns the guide rendered for a terminal with the glamour style
// at stylePath ("dark", "light", "auto" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	notAnIntegrationIssue = &Issue{
		id: NotAnIntegrationId,
		mdMsg: `
# Not an integration!

The directory holds neither a non-built nor a built integration.

## An integration directory contains one of:
- ` + "`definition.yaml`" + ` (non-built layout, with ` + "`pyproject.toml`" + `)
- ` + "`Integration-<Identifier>.def`" + ` (built or half-built layout)

## Things you can try:
- Point the command at the integration directory itself, not at its parent
- List what a marketplace root contains:
~~~
$ mp build marketplace --only <IntegrationName> --verbose
~~~`,
	}

	integrationInvalidIssue = &Issue{
		id: IntegrationInvalidId,
		mdMsg: `
# Integration metadata is invalid!

The integration was parsed but its metadata breaks a marketplace rule.

## Common causes:
- No ` + "`ping`" + ` action, or more than one
- A ` + "`Verify SSL`" + ` parameter that is missing, not a boolean, or not ` + "`true`" + ` by default
- Names or descriptions longer than the marketplace allows
- Parameter defaults that do not match their type

## Things you can try:
- Get every problem at once:
~~~
$ mp validate ./path/to/integration
~~~
- Exempt legacy integrations in your config file under ` + "`validation`",
	}

	missingScriptIssue = &Issue{
		id: MissingScriptId,
		mdMsg: `
# Script not found!

A component is declared in the metadata but its Python script is missing.

## Things you can try:
- Check that every ` + "`actions/<name>.yaml`" + ` has a matching ` + "`actions/<name>.py`" + `
- For built integrations, check the ` + "`Scripts/`" + ` directory`,
	}

	dependencyResolutionFailedIssue = &Issue{
		id: DependencyResolutionFailedId,
		mdMsg: `
# Dependencies could not be resolved!

The compile tool failed to produce a locked requirement list.

## Things you can try:
- Check ` + "`[project].dependencies`" + ` in ` + "`pyproject.toml`" + ` for typos or conflicting pins
- Make sure the compile tool is installed:
~~~
$ uv --version
~~~
- Choose another tool in your config file:
~~~cue
dependencies: compile_command: "pip-compile --quiet"
~~~`,
		extLinks: []HttpLink{"https://docs.astral.sh/uv/pip/compile/"},
	}

	dependencyDownloadFailedIssue = &Issue{
		id: DependencyDownloadFailedId,
		mdMsg: `
# Dependencies could not be downloaded!

Every retry of the download tool failed.

## Things you can try:
- Check your network connection and package index settings
- Increase the retry budget in your config file:
~~~cue
dependencies: {
	max_attempts: 5
	timeout:      "20m"
}
~~~
- Mark libraries the platform already provides as shared:
~~~cue
build: shared_libraries: ["TIPCommon", "EnvironmentCommon"]
~~~`,
		extLinks: []HttpLink{"https://pip.pypa.io/en/stable/cli/pip_download/"},
	}

	duplicateIntegrationIssue = &Issue{
		id: DuplicateIntegrationId,
		mdMsg: `
# Duplicate integration identifier!

Each identifier may appear once across the commercial and community marketplaces.

## Things you can try:
- Rename the identifier of one of the integrations
- Remove the stale copy from the marketplace it no longer belongs to
- Re-run the check on existing output:
~~~
$ mp check duplicates
~~~`,
	}

	outputInsideSourceIssue = &Issue{
		id: OutputInsideSourceId,
		mdMsg: `
# Output directory overlaps the source!

Writing the output inside the tree being read would feed build results back
into the next build.

## Things you can try:
- Choose an output directory outside every marketplace root:
~~~
$ mp build marketplace --output /tmp/mp-out
~~~`,
	}

	marketplaceRootNotFoundIssue = &Issue{
		id: MarketplaceRootNotFoundId,
		mdMsg: `
# Marketplace root not found!

Neither a commercial nor a community root is configured, or a configured root
does not exist.

## Things you can try:
- Pass the roots on the command line:
~~~
$ mp build marketplace --commercial ./commercial --community ./community
~~~
- Or set them once in your config file:
~~~cue
marketplace: {
	commercial: "/src/marketplace/commercial"
	community:  "/src/marketplace/community"
}
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Show where mp looks for the file:
~~~
$ mp config path
~~~
- Start over from the defaults:
~~~
$ mp config init
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

mp could not read the source or write the output directory.

## Things you can try:
- Check the permissions of the source and output directories
- Choose an output directory you own with ` + "`--output`",
	}

	issues = map[Id]*Issue{
		notAnIntegrationIssue.Id():           notAnIntegrationIssue,
		integrationInvalidIssue.Id():         integrationInvalidIssue,
		missingScriptIssue.Id():              missingScriptIssue,
		dependencyResolutionFailedIssue.Id(): dependencyResolutionFailedIssue,
		dependencyDownloadFailedIssue.Id():   dependencyDownloadFailedIssue,
		duplicateIntegrationIssue.Id():       duplicateIntegrationIssue,
		outputInsideSourceIssue.Id():         outputInsideSourceIssue,
		marketplaceRootNotFoundIssue.Id():    marketplaceRootNotFoundIssue,
		configLoadFailedIssue.Id():           configLoadFailedIssue,
		permissionDeniedIssue.Id():           permissionDeniedIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
