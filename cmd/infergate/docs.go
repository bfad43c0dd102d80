package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           infergate API
// @version         1.0
// @description     HTTP gateway translating a simple prompt API onto a local inference daemon.
//
// @contact.name   infergate maintainers
// @contact.url    https://github.com/your-org/infergate
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
