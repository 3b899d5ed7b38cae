// Package context contains the application context types.
//
// This package only exists to avoid a circular import between the app and cli
// packages. Otherwise these types would belong in the app package.
package context
