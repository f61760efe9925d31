// Package registry holds the capabilities a server exposes: tools that
// execute, resources that are read, and prompts that render. Names are
// unique within a category but may repeat across categories, and listings
// preserve registration order.
package registry
