// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/budgets": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "List budgets",
				"description": "Get a paginated list of budgets, optionally filtered by kind, parent and energy type",
				"parameters": [
					{
						"type": "string",
						"description": "parent or child",
						"name": "kind",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Parent budget ID",
						"name": "parentId",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Energy type ID",
						"name": "energyType",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page number (default 1)",
						"name": "page",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Items per page (default 20, max 100)",
						"name": "page_size",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "Paginated budgets"
					},
					"400": {
						"description": "Invalid input",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			},
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "Create a budget",
				"description": "Create a parent budget, or a child budget with meter allocations under a parent",
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Budget details",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/services.BudgetCandidate"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Budget created",
						"schema": {
							"$ref": "#/definitions/handlers.BudgetResponse"
						}
					},
					"400": {
						"description": "Malformed request",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"409": {
						"description": "Parent capacity exceeded",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"422": {
						"description": "Field validation errors",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/budgets/preview": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "Preview a budget",
				"description": "Prorate a total over a period, split it across meter weights and suggest a budget from history",
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Budget being composed",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/services.PreviewRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "Preview",
						"schema": {
							"$ref": "#/definitions/services.Preview"
						}
					},
					"400": {
						"description": "Invalid input",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Parent budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"422": {
						"description": "Invalid period",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/budgets/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "Get budget by ID",
				"description": "Get a budget with per-allocation realization, totals and the monthly burn rate",
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "Budget details",
						"schema": {
							"$ref": "#/definitions/handlers.BudgetDetailResponse"
						}
					},
					"400": {
						"description": "Invalid budget ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			},
			"patch": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "Update budget",
				"description": "Partially update a budget; the merged result is validated like a new submission",
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Fields to change",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/services.BudgetCandidate"
						}
					}
				],
				"responses": {
					"200": {
						"description": "Updated budget",
						"schema": {
							"$ref": "#/definitions/handlers.BudgetResponse"
						}
					},
					"400": {
						"description": "Invalid input or budget ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"409": {
						"description": "Capacity or concurrency conflict",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"422": {
						"description": "Field validation errors",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			},
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "Delete budget",
				"description": "Delete a budget. A parent with children requires cascade=true, which deletes the children too.",
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "boolean",
						"description": "Delete child budgets as well",
						"name": "cascade",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "Budget deleted",
						"schema": {
							"$ref": "#/definitions/handlers.MessageResponse"
						}
					},
					"400": {
						"description": "Invalid budget ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"409": {
						"description": "Budget has children",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/budgets/{id}/available-capacity": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"budgets"
				],
				"summary": "Get available capacity",
				"description": "Get the parent total, the amount allocated to its children and what is left for the next period",
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "Available capacity",
						"schema": {
							"$ref": "#/definitions/services.CapacityView"
						}
					},
					"400": {
						"description": "Budget is not a parent",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/budgets/{id}/realization": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"realization"
				],
				"summary": "Get realization snapshot",
				"description": "Get the realization persisted by the last recalculation of a budget",
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "Realization snapshot",
						"schema": {
							"$ref": "#/definitions/handlers.RealizationResponse"
						}
					},
					"400": {
						"description": "Invalid budget ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found or never recalculated",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/budgets/{id}/recalculate": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"realization"
				],
				"summary": "Recalculate realization",
				"description": "Recompute a budget's realization and replace its snapshot",
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "New snapshot",
						"schema": {
							"$ref": "#/definitions/handlers.RealizationResponse"
						}
					},
					"400": {
						"description": "Invalid budget ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"503": {
						"description": "Store unavailable",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"504": {
						"description": "Request timed out",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/budgets/{id}/classification": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"realization"
				],
				"summary": "Classify budget",
				"description": "Send a budget's realization to the classifier and return its label (HEMAT, NORMAL or BOROS)",
				"parameters": [
					{
						"type": "integer",
						"description": "Budget ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "Classification",
						"schema": {
							"$ref": "#/definitions/handlers.ClassificationResponse"
						}
					},
					"400": {
						"description": "Invalid budget ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Budget not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"502": {
						"description": "Classifier unavailable",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"503": {
						"description": "Classifier not configured",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/pipeline/recalculate": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"pipeline"
				],
				"summary": "Recalculate active budgets",
				"description": "Recompute the realization of every budget whose period contains today",
				"security": [
					{
						"PipelineKey": []
					}
				],
				"responses": {
					"200": {
						"description": "Run summary",
						"schema": {
							"$ref": "#/definitions/services.RecalculationSummary"
						}
					},
					"401": {
						"description": "Invalid API key",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"503": {
						"description": "Pipeline not configured",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/energy-types": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"master-data"
				],
				"summary": "List energy types",
				"responses": {
					"200": {
						"description": "Energy types"
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/energy-types/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"master-data"
				],
				"summary": "Get energy type by ID",
				"parameters": [
					{
						"type": "integer",
						"description": "Energy type ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "Energy type"
					},
					"400": {
						"description": "Invalid energy type ID",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Energy type not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/meters": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"master-data"
				],
				"summary": "List meters",
				"parameters": [
					{
						"type": "integer",
						"description": "Energy type ID",
						"name": "energyType",
						"in": "query"
					},
					{
						"type": "string",
						"description": "active, under_maintenance, inactive or deleted",
						"name": "status",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "Meters"
					},
					"400": {
						"description": "Invalid filter",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Server error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"errors.FieldError": {
			"type": "object",
			"properties": {
				"field": {
					"type": "string"
				},
				"code": {
					"type": "string"
				},
				"message": {
					"type": "string"
				}
			}
		},
		"errors.AppError": {
			"type": "object",
			"properties": {
				"code": {
					"type": "string"
				},
				"message": {
					"type": "string"
				},
				"fields": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/errors.FieldError"
					}
				}
			}
		},
		"handlers.ErrorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"$ref": "#/definitions/errors.AppError"
				}
			}
		},
		"handlers.MessageResponse": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				}
			}
		},
		"handlers.BudgetResponse": {
			"type": "object",
			"properties": {
				"budget": {
					"$ref": "#/definitions/services.BudgetView"
				}
			}
		},
		"handlers.BudgetDetailResponse": {
			"type": "object",
			"properties": {
				"budget": {
					"$ref": "#/definitions/services.BudgetDetail"
				}
			}
		},
		"handlers.RealizationResponse": {
			"type": "object",
			"properties": {
				"realization": {
					"$ref": "#/definitions/models.RealizationSnapshot"
				}
			}
		},
		"handlers.ClassificationResponse": {
			"type": "object",
			"properties": {
				"classification": {
					"$ref": "#/definitions/services.Classification"
				}
			}
		},
		"services.AllocationInput": {
			"type": "object",
			"properties": {
				"meterId": {
					"type": "integer"
				},
				"weight": {
					"type": "number",
					"minimum": 0,
					"maximum": 1
				}
			},
			"required": [
				"meterId",
				"weight"
			]
		},
		"services.BudgetCandidate": {
			"type": "object",
			"properties": {
				"budgetType": {
					"type": "string",
					"enum": [
						"parent",
						"child"
					]
				},
				"periodStart": {
					"type": "string",
					"example": "2024-01-01"
				},
				"periodEnd": {
					"type": "string",
					"example": "2024-12-31"
				},
				"totalBudget": {
					"type": "number"
				},
				"efficiencyTag": {
					"type": "number"
				},
				"energyTypeId": {
					"type": "integer"
				},
				"parentBudgetId": {
					"type": "integer"
				},
				"allocations": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.AllocationInput"
					}
				}
			},
			"required": [
				"budgetType"
			]
		},
		"services.AllocationView": {
			"type": "object",
			"properties": {
				"id": {
					"type": "integer"
				},
				"meterId": {
					"type": "integer"
				},
				"meterCode": {
					"type": "string"
				},
				"meterName": {
					"type": "string"
				},
				"weight": {
					"type": "number"
				}
			}
		},
		"services.BudgetView": {
			"type": "object",
			"properties": {
				"id": {
					"type": "integer"
				},
				"budgetType": {
					"type": "string"
				},
				"parentBudgetId": {
					"type": "integer"
				},
				"periodStart": {
					"type": "string"
				},
				"periodEnd": {
					"type": "string"
				},
				"totalBudget": {
					"type": "number"
				},
				"efficiencyTag": {
					"type": "number"
				},
				"energyTypeId": {
					"type": "integer"
				},
				"status": {
					"type": "string",
					"enum": [
						"active",
						"closed"
					]
				},
				"version": {
					"type": "integer"
				},
				"allocations": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.AllocationView"
					}
				},
				"createdAt": {
					"type": "string"
				},
				"updatedAt": {
					"type": "string"
				}
			}
		},
		"services.AllocationRealization": {
			"type": "object",
			"properties": {
				"allocationId": {
					"type": "integer"
				},
				"meterId": {
					"type": "integer"
				},
				"weight": {
					"type": "number"
				},
				"allocatedBudget": {
					"type": "number"
				},
				"totalRealization": {
					"type": "number"
				},
				"remainingBudget": {
					"type": "number"
				},
				"realizationPercentage": {
					"type": "number"
				}
			}
		},
		"services.MonthlyUsageDetail": {
			"type": "object",
			"properties": {
				"month": {
					"type": "string",
					"example": "2024-01"
				},
				"allocatedBudget": {
					"type": "number"
				},
				"realizationCost": {
					"type": "number"
				}
			}
		},
		"services.BudgetDetail": {
			"type": "object",
			"properties": {
				"id": {
					"type": "integer"
				},
				"budgetType": {
					"type": "string"
				},
				"totalBudget": {
					"type": "number"
				},
				"status": {
					"type": "string"
				},
				"allocations": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.AllocationRealization"
					}
				},
				"totalRealization": {
					"type": "number"
				},
				"remainingBudget": {
					"type": "number"
				},
				"realizationPercentage": {
					"type": "number"
				},
				"monthlyAllocation": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.MonthlyUsageDetail"
					}
				}
			}
		},
		"services.CapacityView": {
			"type": "object",
			"properties": {
				"parentBudgetId": {
					"type": "integer"
				},
				"parentTotalBudget": {
					"type": "number"
				},
				"totalAllocatedToChildren": {
					"type": "number"
				},
				"availableBudgetForNextPeriod": {
					"type": "number"
				},
				"childCount": {
					"type": "integer"
				},
				"integrityWarning": {
					"type": "string"
				}
			}
		},
		"services.PreviewAllocationInput": {
			"type": "object",
			"properties": {
				"meterId": {
					"type": "integer"
				},
				"weight": {
					"type": "number",
					"minimum": 0,
					"maximum": 1
				}
			},
			"required": [
				"meterId"
			]
		},
		"services.PreviewRequest": {
			"type": "object",
			"properties": {
				"parentBudgetId": {
					"type": "integer"
				},
				"budgetId": {
					"type": "integer"
				},
				"totalBudget": {
					"type": "number"
				},
				"periodStart": {
					"type": "string"
				},
				"periodEnd": {
					"type": "string"
				},
				"allocations": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.PreviewAllocationInput"
					}
				}
			},
			"required": [
				"periodStart",
				"periodEnd"
			]
		},
		"services.MeterPreview": {
			"type": "object",
			"properties": {
				"meterId": {
					"type": "integer"
				},
				"meterName": {
					"type": "string"
				},
				"weight": {
					"type": "number"
				},
				"allocatedBudget": {
					"type": "number"
				}
			}
		},
		"services.MonthShareView": {
			"type": "object",
			"properties": {
				"month": {
					"type": "string"
				},
				"amount": {
					"type": "number"
				}
			}
		},
		"services.Preview": {
			"type": "object",
			"properties": {
				"periodStart": {
					"type": "string"
				},
				"periodEnd": {
					"type": "string"
				},
				"months": {
					"type": "integer"
				},
				"totalBudget": {
					"type": "number"
				},
				"budgetPerMonth": {
					"type": "number"
				},
				"monthlyBreakdown": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.MonthShareView"
					}
				},
				"suggestedBudgetForPeriod": {
					"type": "number"
				},
				"weightTotal": {
					"type": "number"
				},
				"weightsSuggested": {
					"type": "boolean"
				},
				"meterAllocationPreview": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/services.MeterPreview"
					}
				},
				"availableCapacity": {
					"$ref": "#/definitions/services.CapacityView"
				}
			}
		},
		"services.RecalculationSummary": {
			"type": "object",
			"properties": {
				"runId": {
					"type": "string"
				},
				"budgets": {
					"type": "integer"
				},
				"recalculated": {
					"type": "integer"
				},
				"failed": {
					"type": "integer"
				}
			}
		},
		"services.Classification": {
			"type": "object",
			"properties": {
				"budgetId": {
					"type": "integer"
				},
				"label": {
					"type": "string",
					"enum": [
						"HEMAT",
						"NORMAL",
						"BOROS"
					]
				},
				"confidence": {
					"type": "number"
				},
				"allocatedBudget": {
					"type": "number"
				},
				"totalRealization": {
					"type": "number"
				},
				"realizationPercentage": {
					"type": "number"
				}
			}
		},
		"models.RealizationSnapshot": {
			"type": "object",
			"properties": {
				"budgetId": {
					"type": "integer"
				},
				"runId": {
					"type": "string"
				},
				"computedAt": {
					"type": "string"
				},
				"allocatedBudget": {
					"type": "number"
				},
				"totalRealization": {
					"type": "number"
				},
				"remainingBudget": {
					"type": "number"
				},
				"realizationPercentage": {
					"type": "number"
				},
				"detail": {
					"type": "object"
				}
			}
		}
	},
	"securityDefinitions": {
		"PipelineKey": {
			"description": "API key shared with the meter ingestion pipeline.",
			"type": "apiKey",
			"name": "X-API-Key",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Energy Budget API",
	Description:      "Hierarchical energy budget allocation: annual parent budgets, weighted child budgets over meters, realization rollups and allocation previews.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
