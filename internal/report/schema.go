package report

// Schema is the JSON Schema (Draft 2020-12) for the mosaic run report.
// It documents the structure written by WriteJSON.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/unbound-force/mosaic/run-report.schema.json",
  "title": "Mosaic Run Report",
  "description": "Output schema for mosaic generate --format=json",
  "type": "object",
  "required": ["version", "subject", "criteria", "seed", "summary", "fitness", "tests", "goals", "generations"],
  "properties": {
    "version": {
      "type": "string",
      "description": "Report layout version"
    },
    "run_id": {
      "type": "string",
      "description": "Identifier of the stored run"
    },
    "subject": {
      "type": "string",
      "description": "Class under test"
    },
    "criteria": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["line", "branch", "cbranch", "ibranch", "method", "methodtrace", "rho"]
      }
    },
    "seed": { "type": "integer" },
    "summary": { "$ref": "#/$defs/Summary" },
    "fitness": {
      "type": "array",
      "items": { "$ref": "#/$defs/CriterionFitness" }
    },
    "tests": {
      "type": "array",
      "items": { "$ref": "#/$defs/Test" }
    },
    "goals": {
      "type": "array",
      "items": { "$ref": "#/$defs/RunGoal" }
    },
    "generations": {
      "type": "array",
      "items": { "$ref": "#/$defs/Generation" }
    }
  },
  "$defs": {
    "Summary": {
      "type": "object",
      "required": ["goals", "covered", "coverage", "tests", "statements", "generations", "stopped_by", "elapsed_ms", "selection_digest"],
      "properties": {
        "goals": { "type": "integer", "minimum": 0 },
        "covered": { "type": "integer", "minimum": 0 },
        "coverage": { "type": "number", "minimum": 0, "maximum": 1 },
        "tests": { "type": "integer", "minimum": 0 },
        "statements": { "type": "integer", "minimum": 0 },
        "generations": { "type": "integer", "minimum": 0 },
        "stopped_by": {
          "type": "string",
          "description": "Name of the stopping condition that ended the search",
          "enum": ["max_time", "max_statements", "max_generations", "full_coverage", "external"]
        },
        "elapsed_ms": { "type": "integer", "minimum": 0 },
        "selection_digest": {
          "type": "string",
          "description": "sha256 of the selected parents; equal for equal seeds"
        }
      }
    },
    "CriterionFitness": {
      "type": "object",
      "required": ["name", "value", "covered", "not_covered", "ratio"],
      "properties": {
        "name": { "type": "string" },
        "value": {
          "type": "number",
          "description": "Suite fitness; lower is better"
        },
        "covered": { "type": "integer", "minimum": 0 },
        "not_covered": { "type": "integer", "minimum": 0 },
        "ratio": { "type": "number", "minimum": 0, "maximum": 1 }
      }
    },
    "Test": {
      "type": "object",
      "required": ["index", "code", "length", "covers"],
      "properties": {
        "index": { "type": "integer", "minimum": 0 },
        "code": { "type": "string" },
        "length": { "type": "integer", "minimum": 0 },
        "covers": {
          "type": "array",
          "items": { "type": "string", "pattern": "^g-[0-9a-f]{8}$" }
        }
      }
    },
    "GoalEntry": {
      "type": "object",
      "required": ["id", "goal", "kind", "class", "method"],
      "properties": {
        "id": {
          "type": "string",
          "description": "Stable identifier (g-XXXXXXXX)",
          "pattern": "^g-[0-9a-f]{8}$"
        },
        "goal": { "type": "string" },
        "kind": {
          "type": "string",
          "enum": ["branch", "line", "method", "methodtrace", "rho"]
        },
        "class": { "type": "string" },
        "method": { "type": "string" },
        "branch_id": { "type": "integer" },
        "value": { "type": "boolean" },
        "line": { "type": "integer", "minimum": 1 },
        "context": {
          "type": "string",
          "description": "Call path, outermost first (A.m->B.n)"
        }
      }
    },
    "RunGoal": {
      "allOf": [{ "$ref": "#/$defs/GoalEntry" }],
      "required": ["covered", "covered_by"],
      "properties": {
        "covered": { "type": "boolean" },
        "covered_by": {
          "type": "array",
          "items": { "type": "integer", "minimum": 0 }
        }
      }
    },
    "Generation": {
      "type": "object",
      "required": ["generation", "population", "offspring", "trash", "skipped_crossovers", "front_zero", "covered", "live", "statements", "elapsed_ns"],
      "properties": {
        "generation": { "type": "integer", "minimum": 0 },
        "population": { "type": "integer", "minimum": 0 },
        "offspring": { "type": "integer", "minimum": 0 },
        "trash": { "type": "integer", "minimum": 0 },
        "skipped_crossovers": { "type": "integer", "minimum": 0 },
        "front_zero": { "type": "integer", "minimum": 0 },
        "covered": { "type": "integer", "minimum": 0 },
        "live": { "type": "integer", "minimum": 0 },
        "statements": { "type": "integer", "minimum": 0 },
        "elapsed_ns": { "type": "integer", "minimum": 0 }
      }
    }
  }
}`

// GoalsSchema is the JSON Schema for the goal listing written by
// WriteGoalsJSON.
const GoalsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/unbound-force/mosaic/goals.schema.json",
  "title": "Mosaic Goal Listing",
  "description": "Output schema for mosaic goals --format=json",
  "type": "object",
  "required": ["version", "subject", "criteria", "goals"],
  "properties": {
    "version": { "type": "string" },
    "subject": { "type": "string" },
    "criteria": {
      "type": "array",
      "items": { "type": "string" }
    },
    "goals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "goal", "kind", "class", "method"],
        "properties": {
          "id": { "type": "string", "pattern": "^g-[0-9a-f]{8}$" },
          "goal": { "type": "string" },
          "kind": { "type": "string" },
          "class": { "type": "string" },
          "method": { "type": "string" },
          "branch_id": { "type": "integer" },
          "value": { "type": "boolean" },
          "line": { "type": "integer", "minimum": 1 },
          "context": { "type": "string" }
        }
      }
    }
  }
}`
