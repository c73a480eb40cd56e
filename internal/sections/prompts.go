package sections

// Prompt texts. User prompts take the idea (or concept) through a single %q
// verb and spell out the JSON shape the decoder expects.

const overviewSystem = "You are a startup planning expert. Generate detailed, actionable startup plans. Always respond with valid JSON."

const overviewUser = `Create a detailed startup plan for: %q. Include overview, problem statement, target market, and value proposition.
Respond with JSON in the format:
{
  "overview": "string",
  "problemStatement": "string",
  "targetMarket": {
    "demographics": ["string"],
    "psychographics": ["string"],
    "marketSize": "string"
  },
  "valueProposition": "string",
  "steps": [{
    "title": "string",
    "description": "string",
    "estimatedTimeframe": "string",
    "criticalFactors": ["string"],
    "tasks": [{
      "title": "string",
      "description": "string",
      "timeline": "string",
      "resources": ["string"],
      "metrics": ["string"]
    }]
  }],
  "keyTraits": [{
    "title": "string",
    "description": "string"
  }]
}`

const marketMetricsSystem = "You are a market analysis expert. Generate realistic market metrics for startup ideas. Always respond with valid JSON."

const marketMetricsUser = `Generate market analysis metrics for: %q. Include market size, growth rate, competitor count, and customer acquisition cost.
Respond with JSON in the format:
{
  "marketSize": "string (e.g., $500M)",
  "growthRate": "string (e.g., 12.5%% YoY)",
  "competitorCount": number,
  "customerAcquisitionCost": "string (e.g., $50-100)"
}`

const competitorsSystem = "You are a competitive analysis expert. Generate detailed competitor analysis for startup ideas. Always respond with valid JSON."

const competitorsUser = `Analyze potential competitors for the startup idea: %q.
Include their strengths, weaknesses, market share, and unique selling points.
Respond with JSON in the format:
{
  "competitors": [{
    "name": "string",
    "strengths": ["string"],
    "weaknesses": ["string"],
    "marketShare": "string",
    "uniqueSellingPoints": ["string"]
  }]
}`

const riskSystem = "You are a startup risk assessment expert. Generate detailed risk analysis. Always respond with valid JSON."

const riskUser = `Analyze potential risks for the startup idea: %q.
Include market risks, financial risks, operational risks, and mitigation strategies.
Respond with JSON in the format:
{
  "marketRisks": [{"risk": "string", "impact": "High|Medium|Low", "mitigation": "string"}],
  "financialRisks": [{"risk": "string", "impact": "High|Medium|Low", "mitigation": "string"}],
  "operationalRisks": [{"risk": "string", "impact": "High|Medium|Low", "mitigation": "string"}],
  "overallRiskScore": number
}`

const researchSystem = "You are an R&D expert. Generate detailed research projects and technology trends analysis. Always respond with valid JSON."

const researchUser = `Analyze R&D opportunities for the startup idea: %q.
Include research projects and relevant technology trends.
Respond with JSON in the format:
{
  "projects": [{
    "id": "string",
    "title": "string",
    "description": "string",
    "status": "planning|in-progress|completed|on-hold",
    "priority": "high|medium|low",
    "timeline": "string",
    "budget": "string",
    "objectives": ["string"],
    "keyFindings": ["string"],
    "technicalChallenges": ["string"],
    "resources": ["string"]
  }],
  "trends": [{
    "name": "string",
    "description": "string",
    "maturityLevel": "emerging|growing|mature",
    "relevanceScore": number,
    "potentialImpact": "string",
    "implementationComplexity": "high|medium|low",
    "estimatedCost": "string"
  }]
}`

const marketingSystem = "You are a marketing strategy expert. Generate comprehensive marketing plans for startups. Always respond with valid JSON."

const marketingUser = `Create a marketing strategy for: %q.
Include channels, budget allocation, timeline, and KPIs.
Respond with JSON in the format:
{
  "channels": [{
    "name": "string",
    "description": "string",
    "priority": "high|medium|low",
    "estimatedBudget": "string",
    "expectedROI": "string",
    "tactics": ["string"]
  }],
  "timeline": [{
    "phase": "string",
    "duration": "string",
    "activities": ["string"],
    "goals": ["string"]
  }],
  "kpis": [{
    "metric": "string",
    "target": "string",
    "timeframe": "string"
  }],
  "budgetAllocation": {
    "total": "string",
    "breakdown": [{
      "category": "string",
      "percentage": number,
      "amount": "string"
    }]
  }
}`

const websiteSystem = "You are a website design expert who creates detailed prompts for AI website generation."

const websiteUser = `Generate a detailed prompt for AI tools to create a website for the following startup idea: %q

The prompt should include:
1. Website purpose and target audience
2. Key features and functionality needed
3. Suggested pages and content structure
4. Design style and branding guidelines
5. Technical requirements
6. User experience considerations
7. Call-to-actions and conversion goals
8. SEO requirements
9. Mobile responsiveness guidelines
10. Integration requirements (if any)

Please format the response in a clear, structured way that can be directly used with AI website builders.`

const ideasSystem = "You are a startup ideation expert. Generate practical, market-viable new startup ideas. Always respond with valid JSON."

const ideasUser = `Generate 12 innovative and viable startup ideas based on the concept: %q.
Each idea should be unique, practical, and have market potential.
Respond with JSON in the format: {"ideas": ["idea1", "idea2", ...]}`

const trendsSystem = "You are an expert business trend analyst. Return only valid JSON without any additional text or explanation."

const trendsUser = `Generate 6 trending business keywords based on current world events and market conditions.
Return the data in this exact JSON structure:
{
  "keywords": [
    {
      "keyword": "string",
      "score": number,
      "category": "string",
      "relatedEvents": ["string"],
      "predictedGrowth": number,
      "confidence": number,
      "timeframe": "string",
      "marketImpact": "High|Medium|Low",
      "industryFocus": ["string"],
      "geographicRelevance": ["string"]
    }
  ]
}

Ensure each trend is:
- Data-driven and specific
- Actionable for businesses
- Based on verifiable current events
- Relevant to modern market conditions`
