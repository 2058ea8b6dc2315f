package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           idgaf API
// @version         1.0
// @description     HTTP API for on-device model loading, caching, and inference.
//
// @contact.name   idgaf maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
