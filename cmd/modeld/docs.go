package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modeld API
// @version         1.0
// @description     HTTP API for an Engine's Sessions: prefill, decode, messages, score, clone, cancel, benchmark.
//
// @contact.name   modeld maintainers
// @contact.url    https://github.com/your-org/modeld
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
