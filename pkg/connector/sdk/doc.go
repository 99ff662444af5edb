// Package sdk contains helpers shared by connector implementations: property
// validation for entity definitions and a generic iterator over paged,
// two-level listings such as datasets and their resources.
package sdk
