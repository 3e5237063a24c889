package pipeline

const extractionResponseSchema = `{
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "data": {"type": "object"}
        },
        "required": ["title"]
      }
    },
    "relations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "from": {"type": "string"},
          "to": {"type": "string"},
          "relation": {"type": "string"}
        },
        "required": ["from", "to", "relation"]
      }
    }
  },
  "required": ["entities", "relations"]
}`

const extractionPromptTemplate = `Extract a knowledge graph from the given text and return it as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble or
explanation. Start your response directly with the opening brace { and end with the closing brace }.
Your output must exactly follow this schema:

%s

Rules:
- Every person, organization, place, object or concept the text talks about is an entity.
- The title of an entity is its shortest unambiguous name as written in the text, singular form.
- data holds short facts about the entity stated in the text as string values. Omit it when there are none.
- Every relation connects two entity titles of the entities list with a short snake_case verb phrase.
- Relations point from the acting or owning entity to the other one.
- Include only what is explicitly stated or clearly implied by the text. Do not hallucinate.
- If nothing can be extracted, return {"entities": [], "relations": []}.

Example:
Input: "Alice works at Acme. Acme is based in Berlin."
Output:
{
  "entities": [
    {"title": "Alice"},
    {"title": "Acme", "data": {"type": "company"}},
    {"title": "Berlin", "data": {"type": "city"}}
  ],
  "relations": [
    {"from": "Alice", "to": "Acme", "relation": "works_at"},
    {"from": "Acme", "to": "Berlin", "relation": "based_in"}
  ]
}`
