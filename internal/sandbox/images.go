package sandbox

import (
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// GetDockerImage returns the image used for a project type.
// A custom image in config takes precedence.
func GetDockerImage(projectType workspace.ProjectType, config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}

	switch projectType {
	case workspace.ProjectTypeGradle:
		return "gradle:jdk17"
	case workspace.ProjectTypeMaven:
		return "maven:3-eclipse-temurin-17"
	case workspace.ProjectTypeGo:
		return "golang:alpine"
	case workspace.ProjectTypeNode:
		return "node:alpine"
	case workspace.ProjectTypePython:
		return "python:alpine"
	case workspace.ProjectTypeRust:
		return "rust:alpine"
	default:
		return "alpine:latest"
	}
}
